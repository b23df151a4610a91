package funcoes

import "context"

// Store é o acesso persistente usado pelo motor de funções.
// Dentro de Tx, o Store recebido opera na mesma transação.
type Store interface {
	UltimaGira(ctx context.Context) (Gira, error)
	Gira(ctx context.Context, id int64) (Gira, error)
	ListGiras(ctx context.Context, limit, offset int) ([]Gira, error)
	CriarGira(ctx context.Context, g Gira, funcoes []Funcao) (Gira, error)

	ListFuncoes(ctx context.Context, giraID int64) ([]Funcao, error)
	Funcao(ctx context.Context, id int64, forUpdate bool) (Funcao, error)
	FuncaoPorChave(ctx context.Context, giraID int64, chave string, forUpdate bool) (Funcao, error)
	// AtualizarStatus só altera a linha se o status atual for o esperado.
	AtualizarStatus(ctx context.Context, id int64, esperado, novo Status, pessoa *int64) (bool, error)
	Editar(ctx context.Context, f Funcao) error
	Medium(ctx context.Context, id int64) (Medium, error)

	RegistrarHistorico(ctx context.Context, h Historico) error
	ListHistorico(ctx context.Context, giraID int64) ([]Historico, error)

	SubstituirSnapshot(ctx context.Context, giraID int64) (int, error)
	ListSnapshot(ctx context.Context, giraID int64) ([]SnapshotFuncao, error)
	SnapshotFuncao(ctx context.Context, id int64, forUpdate bool) (SnapshotFuncao, error)
	AtualizarSnapshotStatus(ctx context.Context, id int64, esperado, novo Status, pessoa *int64) (bool, error)

	Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
