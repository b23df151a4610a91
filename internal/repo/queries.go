package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// Queries concentra consultas de identidade e participantes.
type Queries struct {
	pool *pgxpool.Pool
}

// New cria Queries sobre o pool informado.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const usuarioColumns = `id, celular, nome, email, senha_hash, ativo, staff, superuser, criado_em`

func scanUsuario(row pgx.Row) (Usuario, error) {
	var u Usuario
	var nome *string
	err := row.Scan(&u.ID, &u.Celular, &nome, &u.Email, &u.SenhaHash, &u.Ativo, &u.Staff, &u.Superuser, &u.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrNotFound
	}
	if nome != nil {
		u.Nome = *nome
	}
	return u, err
}

// GetUsuarioByCelular busca usuário pelo celular normalizado.
func (q *Queries) GetUsuarioByCelular(ctx context.Context, celular string) (Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanUsuario(q.pool.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE celular = $1`, celular))
}

// GetUsuarioByID busca usuário pelo identificador.
func (q *Queries) GetUsuarioByID(ctx context.Context, id int64) (Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanUsuario(q.pool.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE id = $1`, id))
}

// GetMediumByUsuario devolve o participante vinculado à identidade.
func (q *Queries) GetMediumByUsuario(ctx context.Context, usuarioID int64) (Medium, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var m Medium
	err := q.pool.QueryRow(ctx, `
		SELECT id, nome, habilitado, usuario_id, foto_url
		FROM mediuns
		WHERE usuario_id = $1
	`, usuarioID).Scan(&m.ID, &m.Nome, &m.Habilitado, &m.UsuarioID, &m.FotoURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

// ListPasskeys lista credenciais WebAuthn do usuário.
func (q *Queries) ListPasskeys(ctx context.Context, usuarioID int64) ([]Passkey, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := q.pool.Query(ctx, `
		SELECT id, usuario_id, credential_id, public_key, sign_count, transports, aaguid, cloned, criado_em
		FROM webauthn_credentials
		WHERE usuario_id = $1
		ORDER BY criado_em DESC
	`, usuarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passkeys []Passkey
	for rows.Next() {
		pk, err := scanPasskey(rows)
		if err != nil {
			return nil, err
		}
		passkeys = append(passkeys, pk)
	}
	return passkeys, rows.Err()
}

// GetPasskeyByCredentialID busca credencial pelo id gerado pelo autenticador.
func (q *Queries) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (Passkey, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	pk, err := scanPasskey(q.pool.QueryRow(ctx, `
		SELECT id, usuario_id, credential_id, public_key, sign_count, transports, aaguid, cloned, criado_em
		FROM webauthn_credentials
		WHERE credential_id = $1
	`, credentialID))
	if errors.Is(err, pgx.ErrNoRows) {
		return pk, ErrNotFound
	}
	return pk, err
}

// InsertPasskey grava nova credencial.
func (q *Queries) InsertPasskey(ctx context.Context, pk Passkey) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := q.pool.Exec(ctx, `
		INSERT INTO webauthn_credentials (usuario_id, credential_id, public_key, sign_count, transports, aaguid, cloned)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, pk.UsuarioID, pk.CredentialID, pk.PublicKey, int64(pk.SignCount), pk.Transports, pk.AAGUID, pk.Cloned)
	return err
}

// UpdatePasskeyCounter atualiza contador de assinaturas.
func (q *Queries) UpdatePasskeyCounter(ctx context.Context, id int64, signCount uint32, cloned bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := q.pool.Exec(ctx, `
		UPDATE webauthn_credentials
		SET sign_count = $2, cloned = $3, atualizado_em = now()
		WHERE id = $1
	`, id, int64(signCount), cloned)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPasskey(row pgx.Row) (Passkey, error) {
	var (
		pk   Passkey
		sign int64
	)
	if err := row.Scan(&pk.ID, &pk.UsuarioID, &pk.CredentialID, &pk.PublicKey, &sign, &pk.Transports, &pk.AAGUID, &pk.Cloned, &pk.CriadoEm); err != nil {
		return pk, err
	}
	if sign < 0 {
		sign = 0
	}
	pk.SignCount = uint32(sign)
	return pk, nil
}
