package funcoes

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/terreiro/giras/internal/auth"
)

// memStore guarda tudo em memória; Tx serializa e desfaz em caso de erro.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	giras     map[int64]Gira
	funcoes   map[int64]Funcao
	mediuns   map[int64]Medium
	snapshot  map[int64]SnapshotFuncao
	historico []Historico
	nextID    int64

	falhaHistorico error
}

func newMemStore() *memStore {
	return &memStore{
		giras:    map[int64]Gira{},
		funcoes:  map[int64]Funcao{},
		mediuns:  map[int64]Medium{},
		snapshot: map[int64]SnapshotFuncao{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	giras, funcoes, snapshot := maps.Clone(m.giras), maps.Clone(m.funcoes), maps.Clone(m.snapshot)
	historico, nextID := slices.Clone(m.historico), m.nextID
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.giras, m.funcoes, m.snapshot = giras, funcoes, snapshot
		m.historico, m.nextID = historico, nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) UltimaGira(ctx context.Context) (Gira, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		ultima Gira
		achou  bool
	)
	for _, g := range m.giras {
		if !achou || g.DataHora.After(ultima.DataHora) || (g.DataHora.Equal(ultima.DataHora) && g.ID > ultima.ID) {
			ultima, achou = g, true
		}
	}
	if !achou {
		return Gira{}, fmt.Errorf("%w: gira", ErrNotFound)
	}
	return ultima, nil
}

func (m *memStore) Gira(ctx context.Context, id int64) (Gira, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.giras[id]
	if !ok {
		return Gira{}, fmt.Errorf("%w: gira", ErrNotFound)
	}
	return g, nil
}

func (m *memStore) ListGiras(ctx context.Context, limit, offset int) ([]Gira, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := slices.Collect(maps.Values(m.giras))
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DataHora.Equal(out[j].DataHora) {
			return out[i].DataHora.After(out[j].DataHora)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return []Gira{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CriarGira(ctx context.Context, g Gira, funcoes []Funcao) (Gira, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g.ID = m.id()
	m.giras[g.ID] = g
	for _, f := range funcoes {
		f.ID = m.id()
		f.GiraID = g.ID
		m.funcoes[f.ID] = f
	}
	return g, nil
}

func (m *memStore) ListFuncoes(ctx context.Context, giraID int64) ([]Funcao, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Funcao
	for _, f := range m.funcoes {
		if f.GiraID == giraID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Funcao(ctx context.Context, id int64, forUpdate bool) (Funcao, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.funcoes[id]
	if !ok {
		return Funcao{}, fmt.Errorf("%w: função", ErrNotFound)
	}
	return f, nil
}

func (m *memStore) FuncaoPorChave(ctx context.Context, giraID int64, chave string, forUpdate bool) (Funcao, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.funcoes {
		if f.GiraID == giraID && f.Chave == chave {
			return f, nil
		}
	}
	return Funcao{}, fmt.Errorf("%w: função", ErrNotFound)
}

func (m *memStore) AtualizarStatus(ctx context.Context, id int64, esperado, novo Status, pessoa *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.funcoes[id]
	if !ok || f.Status != esperado {
		return false, nil
	}
	f.Status, f.PessoaID, f.PessoaNome = novo, pessoa, m.nomeMedium(pessoa)
	m.funcoes[id] = f
	return true, nil
}

func (m *memStore) Editar(ctx context.Context, f Funcao) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.funcoes[f.ID]; !ok {
		return fmt.Errorf("%w: função", ErrNotFound)
	}
	m.funcoes[f.ID] = f
	return nil
}

func (m *memStore) Medium(ctx context.Context, id int64) (Medium, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, ok := m.mediuns[id]
	if !ok {
		return Medium{}, fmt.Errorf("%w: médium", ErrNotFound)
	}
	return md, nil
}

func (m *memStore) RegistrarHistorico(ctx context.Context, h Historico) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.falhaHistorico != nil {
		return m.falhaHistorico
	}
	h.ID = m.id()
	m.historico = append(m.historico, h)
	return nil
}

func (m *memStore) ListHistorico(ctx context.Context, giraID int64) ([]Historico, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Historico{}
	for _, h := range m.historico {
		if h.GiraID == giraID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) SubstituirSnapshot(ctx context.Context, giraID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.snapshot {
		if s.GiraID == giraID {
			delete(m.snapshot, id)
		}
	}
	ids := slices.Sorted(maps.Keys(m.funcoes))
	total := 0
	for _, fid := range ids {
		f := m.funcoes[fid]
		if f.GiraID != giraID {
			continue
		}
		funcaoID := f.ID
		s := SnapshotFuncao{
			ID:                m.id(),
			GiraID:            giraID,
			FuncaoID:          &funcaoID,
			Chave:             f.Chave,
			Tipo:              f.Tipo,
			Posicao:           f.Posicao,
			Descricao:         f.Descricao,
			Status:            f.Status,
			MediumDeLinhaNome: f.MediumDeLinhaNome,
			PessoaID:          f.PessoaID,
			PessoaNome:        f.PessoaNome,
		}
		m.snapshot[s.ID] = s
		total++
	}
	return total, nil
}

func (m *memStore) ListSnapshot(ctx context.Context, giraID int64) ([]SnapshotFuncao, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []SnapshotFuncao
	for _, s := range m.snapshot {
		if s.GiraID == giraID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SnapshotFuncao(ctx context.Context, id int64, forUpdate bool) (SnapshotFuncao, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.snapshot[id]
	if !ok {
		return SnapshotFuncao{}, fmt.Errorf("%w: linha do snapshot", ErrNotFound)
	}
	return s, nil
}

func (m *memStore) AtualizarSnapshotStatus(ctx context.Context, id int64, esperado, novo Status, pessoa *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.snapshot[id]
	if !ok || s.Status != esperado {
		return false, nil
	}
	s.Status, s.PessoaID, s.PessoaNome = novo, pessoa, m.nomeMedium(pessoa)
	m.snapshot[id] = s
	return true, nil
}

func (m *memStore) nomeMedium(id *int64) string {
	if id == nil {
		return ""
	}
	return m.mediuns[*id].Nome
}

func (m *memStore) funcaoPorChave(t *testing.T, chave string) Funcao {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.funcoes {
		if f.Chave == chave {
			return f
		}
	}
	t.Fatalf("função %q não existe", chave)
	return Funcao{}
}

// conferirInvariantes falha se alguma linha ficou com status e pessoa incoerentes.
func (m *memStore) conferirInvariantes(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.funcoes {
		if !consistente(f.Status, f.PessoaID) {
			t.Fatalf("função %s incoerente: status=%s pessoa=%v", f.Chave, f.Status, f.PessoaID)
		}
	}
	for _, s := range m.snapshot {
		if !consistente(s.Status, s.PessoaID) {
			t.Fatalf("snapshot %d incoerente: status=%s pessoa=%v", s.ID, s.Status, s.PessoaID)
		}
	}
}

var agora = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

var fusoTerreiro = time.FixedZone("BRT", -3*60*60)

const (
	mediumBruna   int64 = 10
	mediumAna     int64 = 20
	mediumZeca    int64 = 30
	mediumInativo int64 = 40
)

// novoCenario cria a "Gira de Exu" na data informada com uma função de cada categoria.
func novoCenario(t *testing.T, dataGira time.Time) (*memStore, *Service, Gira) {
	t.Helper()

	store := newMemStore()
	store.mediuns[mediumBruna] = Medium{ID: mediumBruna, Nome: "Mãe Bruna", Habilitado: true}
	store.mediuns[mediumAna] = Medium{ID: mediumAna, Nome: "Ana", Habilitado: true}
	store.mediuns[mediumZeca] = Medium{ID: mediumZeca, Nome: "Zeca", Habilitado: true}
	store.mediuns[mediumInativo] = Medium{ID: mediumInativo, Nome: "Inativo", Habilitado: false}

	g, err := store.CriarGira(context.Background(), Gira{Titulo: "Gira de Exu", DataHora: dataGira, Status: "ativa"}, []Funcao{
		{Chave: "cambone-1", Tipo: "Cambones", Descricao: "Cambone", Status: StatusVaga},
		{Chave: "portao", Tipo: "Organizacao", Descricao: "Portão", Status: StatusVaga},
		{Chave: "limpeza-1", Tipo: "Limpeza", Posicao: "01", Descricao: "Limpeza do terreiro", Status: StatusVaga},
	})
	if err != nil {
		t.Fatalf("criar gira: %v", err)
	}

	svc := NewService(store, WithLocation(fusoTerreiro), WithClock(func() time.Time { return agora }))
	return store, svc, g
}

func ptr[T any](v T) *T {
	return &v
}

func coordenador() *auth.Caller {
	return &auth.Caller{UsuarioID: 1, Celular: "11900000001", Nome: "Coordenação", Privilegiado: true, MediumID: ptr(mediumBruna), MediumNome: "Mãe Bruna", MediumHabilitado: true}
}

func chamador(usuarioID, mediumID int64, nome string) *auth.Caller {
	return &auth.Caller{
		UsuarioID:        usuarioID,
		Celular:          fmt.Sprintf("1190000%04d", usuarioID),
		Nome:             nome,
		MediumID:         ptr(mediumID),
		MediumNome:       nome,
		MediumHabilitado: mediumID != mediumInativo,
	}
}
