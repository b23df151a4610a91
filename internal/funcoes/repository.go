package funcoes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terreiro/giras/internal/db"
)

const dbTimeout = 3 * time.Second

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implementa Store sobre Postgres.
type Repository struct {
	pool *pgxpool.Pool
	db   querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// Tx abre transação no pool; chamadas aninhadas reaproveitam a transação atual.
func (r *Repository) Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx})
	})
}

const giraColumns = `id, titulo, data_hora, linha, status, criado_por`

func scanGira(row pgx.Row) (Gira, error) {
	var g Gira
	err := row.Scan(&g.ID, &g.Titulo, &g.DataHora, &g.Linha, &g.Status, &g.CriadoPor)
	if errors.Is(err, pgx.ErrNoRows) {
		return g, fmt.Errorf("%w: gira", ErrNotFound)
	}
	return g, err
}

func (r *Repository) UltimaGira(ctx context.Context) (Gira, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanGira(r.db.QueryRow(ctx, `SELECT `+giraColumns+` FROM giras ORDER BY data_hora DESC, id DESC LIMIT 1`))
}

func (r *Repository) Gira(ctx context.Context, id int64) (Gira, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanGira(r.db.QueryRow(ctx, `SELECT `+giraColumns+` FROM giras WHERE id = $1`, id))
}

func (r *Repository) ListGiras(ctx context.Context, limit, offset int) ([]Gira, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+giraColumns+`
		FROM giras
		ORDER BY data_hora DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	giras := []Gira{}
	for rows.Next() {
		g, err := scanGira(rows)
		if err != nil {
			return nil, err
		}
		giras = append(giras, g)
	}
	return giras, rows.Err()
}

func (r *Repository) CriarGira(ctx context.Context, g Gira, funcoes []Funcao) (Gira, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if g.Status == "" {
		g.Status = "ativa"
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO giras (titulo, data_hora, linha, status, criado_por)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, g.Titulo, g.DataHora, g.Linha, g.Status, g.CriadoPor).Scan(&g.ID)
	if err != nil {
		return g, err
	}

	for _, f := range funcoes {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO funcoes (gira_id, chave, tipo, posicao, descricao, status, medium_de_linha_id)
			VALUES ($1, $2, $3, $4, $5, 'Vaga', $6)
		`, g.ID, f.Chave, f.Tipo, f.Posicao, f.Descricao, f.MediumDeLinhaID); err != nil {
			return g, fmt.Errorf("funcao %s: %w", f.Chave, err)
		}
	}
	return g, nil
}

const funcaoSelect = `
	SELECT f.id, f.gira_id, f.chave, f.tipo, f.posicao, f.descricao, f.status,
	       f.medium_de_linha_id, COALESCE(ml.nome, ''), f.pessoa_id, COALESCE(p.nome, '')
	FROM funcoes f
	LEFT JOIN mediuns ml ON ml.id = f.medium_de_linha_id
	LEFT JOIN mediuns p ON p.id = f.pessoa_id
`

func scanFuncao(row pgx.Row) (Funcao, error) {
	var f Funcao
	err := row.Scan(&f.ID, &f.GiraID, &f.Chave, &f.Tipo, &f.Posicao, &f.Descricao, &f.Status,
		&f.MediumDeLinhaID, &f.MediumDeLinhaNome, &f.PessoaID, &f.PessoaNome)
	if errors.Is(err, pgx.ErrNoRows) {
		return f, fmt.Errorf("%w: função", ErrNotFound)
	}
	return f, err
}

func lock(forUpdate bool, tabela string) string {
	if forUpdate {
		return " FOR UPDATE OF " + tabela
	}
	return ""
}

func (r *Repository) ListFuncoes(ctx context.Context, giraID int64) ([]Funcao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, funcaoSelect+` WHERE f.gira_id = $1 ORDER BY f.id`, giraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funcoes []Funcao
	for rows.Next() {
		f, err := scanFuncao(rows)
		if err != nil {
			return nil, err
		}
		funcoes = append(funcoes, f)
	}
	return funcoes, rows.Err()
}

func (r *Repository) Funcao(ctx context.Context, id int64, forUpdate bool) (Funcao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanFuncao(r.db.QueryRow(ctx, funcaoSelect+` WHERE f.id = $1`+lock(forUpdate, "f"), id))
}

func (r *Repository) FuncaoPorChave(ctx context.Context, giraID int64, chave string, forUpdate bool) (Funcao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanFuncao(r.db.QueryRow(ctx, funcaoSelect+` WHERE f.gira_id = $1 AND f.chave = $2`+lock(forUpdate, "f"), giraID, chave))
}

func (r *Repository) AtualizarStatus(ctx context.Context, id int64, esperado, novo Status, pessoa *int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `
		UPDATE funcoes
		SET status = $3, pessoa_id = $4
		WHERE id = $1 AND status = $2
	`, id, esperado, novo, pessoa)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *Repository) Editar(ctx context.Context, f Funcao) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `
		UPDATE funcoes
		SET posicao = $2, descricao = $3, medium_de_linha_id = $4, pessoa_id = $5, status = $6
		WHERE id = $1
	`, f.ID, f.Posicao, f.Descricao, f.MediumDeLinhaID, f.PessoaID, f.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: função", ErrNotFound)
	}
	return nil
}

func (r *Repository) Medium(ctx context.Context, id int64) (Medium, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var m Medium
	err := r.db.QueryRow(ctx, `SELECT id, nome, habilitado FROM mediuns WHERE id = $1`, id).Scan(&m.ID, &m.Nome, &m.Habilitado)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, fmt.Errorf("%w: médium", ErrNotFound)
	}
	return m, err
}

func (r *Repository) RegistrarHistorico(ctx context.Context, h Historico) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO historico (gira_id, funcao_id, usuario_id, acao, data, info)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.GiraID, h.FuncaoID, h.UsuarioID, h.Acao, h.Data, h.Info)
	return err
}

func (r *Repository) ListHistorico(ctx context.Context, giraID int64) ([]Historico, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, gira_id, funcao_id, usuario_id, acao, data, info
		FROM historico
		WHERE gira_id = $1
		ORDER BY data, id
	`, giraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entradas := []Historico{}
	for rows.Next() {
		var h Historico
		if err := rows.Scan(&h.ID, &h.GiraID, &h.FuncaoID, &h.UsuarioID, &h.Acao, &h.Data, &h.Info); err != nil {
			return nil, err
		}
		entradas = append(entradas, h)
	}
	return entradas, rows.Err()
}

// SubstituirSnapshot recria a cópia congelada das funções da gira.
func (r *Repository) SubstituirSnapshot(ctx context.Context, giraID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := r.db.Exec(ctx, `DELETE FROM gira_funcao_historico WHERE gira_id = $1`, giraID); err != nil {
		return 0, err
	}
	cmd, err := r.db.Exec(ctx, `
		INSERT INTO gira_funcao_historico
			(gira_id, funcao_id, chave, tipo, posicao, descricao, status, medium_de_linha_nome, pessoa_id, atualizado_em)
		SELECT f.gira_id, f.id, f.chave, f.tipo, f.posicao, f.descricao, f.status, COALESCE(ml.nome, ''), f.pessoa_id, now()
		FROM funcoes f
		LEFT JOIN mediuns ml ON ml.id = f.medium_de_linha_id
		WHERE f.gira_id = $1
		ORDER BY f.id
	`, giraID)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

const snapshotSelect = `
	SELECT s.id, s.gira_id, s.funcao_id, s.chave, s.tipo, s.posicao, s.descricao, s.status,
	       s.medium_de_linha_nome, s.pessoa_id, COALESCE(p.nome, ''), s.atualizado_em
	FROM gira_funcao_historico s
	LEFT JOIN mediuns p ON p.id = s.pessoa_id
`

func scanSnapshot(row pgx.Row) (SnapshotFuncao, error) {
	var s SnapshotFuncao
	err := row.Scan(&s.ID, &s.GiraID, &s.FuncaoID, &s.Chave, &s.Tipo, &s.Posicao, &s.Descricao, &s.Status,
		&s.MediumDeLinhaNome, &s.PessoaID, &s.PessoaNome, &s.AtualizadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, fmt.Errorf("%w: registro do histórico", ErrNotFound)
	}
	return s, err
}

func (r *Repository) ListSnapshot(ctx context.Context, giraID int64) ([]SnapshotFuncao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, snapshotSelect+` WHERE s.gira_id = $1 ORDER BY s.id`, giraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var itens []SnapshotFuncao
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		itens = append(itens, s)
	}
	return itens, rows.Err()
}

func (r *Repository) SnapshotFuncao(ctx context.Context, id int64, forUpdate bool) (SnapshotFuncao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanSnapshot(r.db.QueryRow(ctx, snapshotSelect+` WHERE s.id = $1`+lock(forUpdate, "s"), id))
}

func (r *Repository) AtualizarSnapshotStatus(ctx context.Context, id int64, esperado, novo Status, pessoa *int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `
		UPDATE gira_funcao_historico
		SET status = $3, pessoa_id = $4, atualizado_em = now()
		WHERE id = $1 AND status = $2
	`, id, esperado, novo, pessoa)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}
