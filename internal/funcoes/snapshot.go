package funcoes

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terreiro/giras/internal/auth"
)

// GerarSnapshot recria a cópia congelada das funções da gira.
func (s *Service) GerarSnapshot(ctx context.Context, caller *auth.Caller, giraID int64) (int, error) {
	if err := exigirCoordenacao(caller); err != nil {
		return 0, err
	}

	var total int
	err := s.store.Tx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Gira(ctx, giraID); err != nil {
			return err
		}
		var err error
		total, err = tx.SubstituirSnapshot(ctx, giraID)
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("gira_id", giraID).Int("funcoes", total).Int64("usuario_id", caller.UsuarioID).Msg("snapshot gerado")
	return total, nil
}

// Snapshot devolve a visão administrativa agrupada e ordenada.
func (s *Service) Snapshot(ctx context.Context, caller *auth.Caller, giraID int64) (Painel, error) {
	if err := exigirCoordenacao(caller); err != nil {
		return Painel{}, err
	}
	g, err := s.store.Gira(ctx, giraID)
	if err != nil {
		return Painel{}, err
	}
	linhas, err := s.store.ListSnapshot(ctx, giraID)
	if err != nil {
		return Painel{}, err
	}
	items := make([]Item, 0, len(linhas))
	for _, l := range linhas {
		items = append(items, l.Item())
	}
	return MontarPainel(g, items), nil
}

// AssumirSnapshot ocupa uma linha do snapshot; giras passadas são recusadas.
func (s *Service) AssumirSnapshot(ctx context.Context, caller *auth.Caller, id int64) (Item, error) {
	var out SnapshotFuncao
	err := s.mutar(ctx, caller, func(ctx context.Context, tx Store) error {
		row, err := s.linhaVigente(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := podeAssumir(caller, Classificar(row.Tipo, row.Chave, row.Descricao)); err != nil {
			return err
		}
		if row.Status != StatusVaga {
			return fmt.Errorf("%w: função já está preenchida", ErrConflict)
		}

		ok, err := tx.AtualizarSnapshotStatus(ctx, row.ID, StatusVaga, StatusPreenchida, caller.MediumID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: função foi assumida por outra pessoa", ErrConflict)
		}
		if err := tx.RegistrarHistorico(ctx, s.entradaSnapshot(row, caller, AcaoAssumir)); err != nil {
			return err
		}

		row.Status = StatusPreenchida
		row.PessoaID = caller.MediumID
		row.PessoaNome = caller.MediumNome
		out = row
		return nil
	})
	s.registrar(ctx, AcaoAssumir, caller, "snapshot:"+strconv.FormatInt(id, 10), err)
	if err != nil {
		return Item{}, err
	}
	return out.Item(), nil
}

// LiberarSnapshot esvazia uma linha do snapshot de gira vigente.
func (s *Service) LiberarSnapshot(ctx context.Context, caller *auth.Caller, id int64) (Item, error) {
	var out SnapshotFuncao
	err := s.mutar(ctx, caller, func(ctx context.Context, tx Store) error {
		row, err := s.linhaVigente(ctx, tx, id)
		if err != nil {
			return err
		}
		if row.Status != StatusPreenchida {
			return fmt.Errorf("%w: função já está vaga", ErrConflict)
		}
		if !podeLiberar(caller, row.PessoaID) {
			return fmt.Errorf("%w: função ocupada por outra pessoa", ErrForbidden)
		}

		ok, err := tx.AtualizarSnapshotStatus(ctx, row.ID, StatusPreenchida, StatusVaga, nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: função foi liberada por outra pessoa", ErrConflict)
		}
		if err := tx.RegistrarHistorico(ctx, s.entradaSnapshot(row, caller, AcaoLiberar)); err != nil {
			return err
		}

		row.Status = StatusVaga
		row.PessoaID = nil
		row.PessoaNome = ""
		out = row
		return nil
	})
	s.registrar(ctx, AcaoLiberar, caller, "snapshot:"+strconv.FormatInt(id, 10), err)
	if err != nil {
		return Item{}, err
	}
	return out.Item(), nil
}

// linhaVigente carrega a linha com lock e aplica a trava de data antes de qualquer regra de permissão.
func (s *Service) linhaVigente(ctx context.Context, tx Store, id int64) (SnapshotFuncao, error) {
	row, err := tx.SnapshotFuncao(ctx, id, true)
	if err != nil {
		return row, err
	}
	g, err := tx.Gira(ctx, row.GiraID)
	if err != nil {
		return row, err
	}
	if !s.vigente(g) {
		return row, fmt.Errorf("%w: gira de %s não aceita mais alterações", ErrTemporal, g.DataHora.In(s.loc).Format("02/01/2006"))
	}
	return row, nil
}

// vigente compara apenas datas no fuso configurado: hoje ou depois.
func (s *Service) vigente(g Gira) bool {
	hoje := dia(s.now().In(s.loc))
	return !dia(g.DataHora.In(s.loc)).Before(hoje)
}

func dia(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *Service) entradaSnapshot(row SnapshotFuncao, caller *auth.Caller, acao string) Historico {
	h := s.entrada(row.GiraID, row.FuncaoID, caller, acao, nil)
	h.Info["snapshot"] = true
	h.Info["snapshot_id"] = row.ID
	return h
}
