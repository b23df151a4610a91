package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	tabelaMigracoes = "schema_migrations"
	tabelaSeeds     = "schema_seeds"
)

// ErrNadaAplicado indica que não há migração para reverter.
var ErrNadaAplicado = errors.New("nenhuma migração aplicada")

// Manager aplica os arquivos SQL de migrations/ e seeds.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	now           func() time.Time
}

// NewManager usa database/sql para rodar os scripts fora do pool da API.
func NewManager(db *sql.DB, migrationsDir, seedsDir string) *Manager {
	return &Manager{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir, now: time.Now}
}

// Aplicada é uma linha da tabela de controle.
type Aplicada struct {
	Nome       string
	AplicadaEm time.Time
}

// Up aplica as migrações pendentes em ordem de nome.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	return m.aplicarPendentes(ctx, tabelaMigracoes, m.migrationsDir, ".up.sql")
}

// Seed aplica seeds ainda não executados.
func (m *Manager) Seed(ctx context.Context) ([]string, error) {
	return m.aplicarPendentes(ctx, tabelaSeeds, m.seedsDir, ".sql")
}

func (m *Manager) aplicarPendentes(ctx context.Context, tabela, dir, sufixo string) ([]string, error) {
	if err := m.garantirTabelas(ctx); err != nil {
		return nil, err
	}
	aplicadas, err := m.historico(ctx, tabela)
	if err != nil {
		return nil, err
	}
	feitas := make(map[string]bool, len(aplicadas))
	for _, a := range aplicadas {
		feitas[a.Nome] = true
	}

	arquivos, err := listarSQL(dir, sufixo)
	if err != nil {
		return nil, err
	}

	var novas []string
	for _, arq := range arquivos {
		if feitas[arq.nome] {
			continue
		}
		if err := m.executar(ctx, arq.caminho, tabela, arq.nome, true); err != nil {
			return novas, fmt.Errorf("%s: %w", arq.nome, err)
		}
		log.Info().Str("arquivo", arq.nome).Str("tabela", tabela).Msg("script aplicado")
		novas = append(novas, arq.nome)
	}
	return novas, nil
}

// Down reverte a última migração aplicada.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.garantirTabelas(ctx); err != nil {
		return "", err
	}
	aplicadas, err := m.historico(ctx, tabelaMigracoes)
	if err != nil {
		return "", err
	}
	if len(aplicadas) == 0 {
		return "", ErrNadaAplicado
	}

	ultima := aplicadas[len(aplicadas)-1].Nome
	down := filepath.Join(m.migrationsDir, strings.TrimSuffix(ultima, ".up.sql")+".down.sql")
	if _, err := os.Stat(down); err != nil {
		return "", fmt.Errorf("migração %s sem arquivo down: %w", ultima, err)
	}
	if err := m.executar(ctx, down, tabelaMigracoes, ultima, false); err != nil {
		return "", fmt.Errorf("reverter %s: %w", ultima, err)
	}
	log.Info().Str("arquivo", ultima).Msg("migração revertida")
	return ultima, nil
}

// Status lista as migrações aplicadas, da mais antiga para a mais nova.
func (m *Manager) Status(ctx context.Context) ([]Aplicada, error) {
	if err := m.garantirTabelas(ctx); err != nil {
		return nil, err
	}
	return m.historico(ctx, tabelaMigracoes)
}

func (m *Manager) garantirTabelas(ctx context.Context) error {
	for _, tabela := range []string{tabelaMigracoes, tabelaSeeds} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, tabela)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// executar roda o script e o registro de controle na mesma transação.
func (m *Manager) executar(ctx context.Context, caminho, tabela, nome string, registrar bool) error {
	conteudo, err := os.ReadFile(caminho)
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range dividirComandos(string(conteudo)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if registrar {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, tabela), nome, m.now().UTC())
	} else {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, tabela), nome)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) historico(ctx context.Context, tabela string) ([]Aplicada, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name, applied_at from %s order by applied_at, name`, tabela))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Aplicada
	for rows.Next() {
		var a Aplicada
		if err := rows.Scan(&a.Nome, &a.AplicadaEm); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type arquivoSQL struct {
	nome    string
	caminho string
}

// listarSQL só olha o primeiro nível do diretório.
func listarSQL(dir, sufixo string) ([]arquivoSQL, error) {
	if dir == "" {
		return nil, nil
	}
	entradas, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var arquivos []arquivoSQL
	for _, e := range entradas {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sufixo) {
			continue
		}
		arquivos = append(arquivos, arquivoSQL{nome: e.Name(), caminho: filepath.Join(dir, e.Name())})
	}
	sort.Slice(arquivos, func(i, j int) bool { return arquivos[i].nome < arquivos[j].nome })
	return arquivos, nil
}

// dividirComandos separa por ponto e vírgula fora de aspas simples.
func dividirComandos(script string) []string {
	var (
		out   []string
		atual strings.Builder
		aspas bool
	)
	for _, r := range script {
		atual.WriteRune(r)
		switch {
		case r == '\'':
			aspas = !aspas
		case r == ';' && !aspas:
			if s := strings.TrimSpace(atual.String()); s != ";" {
				out = append(out, s)
			}
			atual.Reset()
		}
	}
	if s := strings.TrimSpace(atual.String()); s != "" {
		out = append(out, s)
	}
	return out
}
