package funcoes

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type chamadaSQL struct {
	sql  string
	args []any
}

// fakeQuerier grava o SQL emitido e devolve a tag/linha configurada.
type fakeQuerier struct {
	execs   []chamadaSQL
	queries []chamadaSQL
	tag     pgconn.CommandTag
	scan    func(dest ...any) error
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, chamadaSQL{sql: sql, args: args})
	return f.tag, nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query não esperada")
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.queries = append(f.queries, chamadaSQL{sql: sql, args: args})
	return linhaFake{scan: f.scan}
}

type linhaFake struct {
	scan func(dest ...any) error
}

func (l linhaFake) Scan(dest ...any) error {
	if l.scan == nil {
		return pgx.ErrNoRows
	}
	return l.scan(dest...)
}

func compactar(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

func TestAtualizarStatusUsaContagemDeLinhas(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 1")}
	r := &Repository{db: q}
	pessoa := int64(20)

	ok, err := r.AtualizarStatus(context.Background(), 7, StatusVaga, StatusPreenchida, &pessoa)
	if err != nil || !ok {
		t.Fatalf("expected applied update, got ok=%v err=%v", ok, err)
	}
	sql := compactar(q.execs[0].sql)
	if !strings.Contains(sql, "UPDATE funcoes SET status = $3, pessoa_id = $4 WHERE id = $1 AND status = $2") {
		t.Fatalf("update must be conditional on the expected status: %s", sql)
	}
	if want := []any{int64(7), StatusVaga, StatusPreenchida, &pessoa}; !reflect.DeepEqual(q.execs[0].args, want) {
		t.Fatalf("unexpected args %v", q.execs[0].args)
	}

	q.tag = pgconn.NewCommandTag("UPDATE 0")
	ok, err = r.AtualizarStatus(context.Background(), 7, StatusVaga, StatusPreenchida, &pessoa)
	if err != nil || ok {
		t.Fatalf("zero affected rows must report a lost race, got ok=%v err=%v", ok, err)
	}
}

func TestAtualizarSnapshotStatusUsaContagemDeLinhas(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 0")}
	r := &Repository{db: q}

	ok, err := r.AtualizarSnapshotStatus(context.Background(), 9, StatusPreenchida, StatusVaga, nil)
	if err != nil || ok {
		t.Fatalf("expected lost race, got ok=%v err=%v", ok, err)
	}
	sql := compactar(q.execs[0].sql)
	if !strings.Contains(sql, "UPDATE gira_funcao_historico") || !strings.Contains(sql, "WHERE id = $1 AND status = $2") {
		t.Fatalf("snapshot update must be conditional: %s", sql)
	}
}

func TestFuncaoBloqueiaLinhaQuandoPedido(t *testing.T) {
	q := &fakeQuerier{scan: func(dest ...any) error {
		*dest[0].(*int64) = 3
		*dest[1].(*int64) = 1
		*dest[2].(*string) = "portao"
		*dest[6].(*Status) = StatusVaga
		return nil
	}}
	r := &Repository{db: q}
	ctx := context.Background()

	f, err := r.FuncaoPorChave(ctx, 1, "portao", true)
	if err != nil {
		t.Fatalf("funcao por chave: %v", err)
	}
	if f.ID != 3 || f.GiraID != 1 || f.Chave != "portao" || f.Status != StatusVaga {
		t.Fatalf("unexpected funcao %+v", f)
	}
	if sql := compactar(q.queries[0].sql); !strings.HasSuffix(sql, "WHERE f.gira_id = $1 AND f.chave = $2 FOR UPDATE OF f") {
		t.Fatalf("expected row lock on funcoes: %s", sql)
	}

	if _, err := r.Funcao(ctx, 3, false); err != nil {
		t.Fatalf("funcao: %v", err)
	}
	if sql := q.queries[1].sql; strings.Contains(sql, "FOR UPDATE") {
		t.Fatalf("read without lock must not use FOR UPDATE: %s", compactar(sql))
	}
}

func TestLinhaAusenteViraNotFound(t *testing.T) {
	q := &fakeQuerier{}
	r := &Repository{db: q}
	ctx := context.Background()

	if _, err := r.Funcao(ctx, 99, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for funcao, got %v", err)
	}
	if _, err := r.SnapshotFuncao(ctx, 99, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for snapshot, got %v", err)
	}
	if sql := compactar(q.queries[1].sql); !strings.HasSuffix(sql, "WHERE s.id = $1 FOR UPDATE OF s") {
		t.Fatalf("expected row lock on snapshot: %s", sql)
	}
	if _, err := r.Gira(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for gira, got %v", err)
	}

	q.tag = pgconn.NewCommandTag("UPDATE 0")
	if err := r.Editar(ctx, Funcao{ID: 99, Status: StatusVaga}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("edit of missing row must be not found, got %v", err)
	}
}

func TestTxSemPoolReaproveitaRepositorio(t *testing.T) {
	r := &Repository{db: &fakeQuerier{}}
	var recebido Store
	err := r.Tx(context.Background(), func(ctx context.Context, tx Store) error {
		recebido = tx
		return nil
	})
	if err != nil || recebido != Store(r) {
		t.Fatalf("nested tx must reuse the current repository, got %v %v", recebido, err)
	}
}
