package funcoes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/terreiro/giras/internal/auth"
	"github.com/terreiro/giras/internal/obs"
)

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Service contém as regras de assumir, liberar e editar funções.
type Service struct {
	store    Store
	cache    redisCommander
	cacheTTL time.Duration
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Service)

// WithCache liga o cache do painel no Redis.
func WithCache(cache redisCommander, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithLocation define o fuso usado para comparar datas de gira.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func painelKey(giraID int64) string {
	return fmt.Sprintf("painel:%d", giraID)
}

// Painel devolve as funções da gira (última quando giraID é nil) agrupadas e ordenadas.
func (s *Service) Painel(ctx context.Context, caller *auth.Caller, giraID *int64) (Painel, error) {
	if caller == nil {
		return Painel{}, ErrUnauthenticated
	}

	g, err := s.gira(ctx, s.store, giraID)
	if err != nil {
		return Painel{}, err
	}

	key := painelKey(g.ID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var p Painel
			if json.Unmarshal(data, &p) == nil {
				return p, nil
			}
		}
	}

	funcoes, err := s.store.ListFuncoes(ctx, g.ID)
	if err != nil {
		return Painel{}, err
	}
	items := make([]Item, 0, len(funcoes))
	for _, f := range funcoes {
		items = append(items, f.Item())
	}
	p := MontarPainel(g, items)

	if s.cache != nil {
		if payload, err := json.Marshal(p); err == nil {
			_ = s.cache.Set(ctx, key, payload, s.cacheTTL).Err()
		}
	}
	return p, nil
}

// Assumir ocupa uma função vaga com o médium do chamador.
func (s *Service) Assumir(ctx context.Context, caller *auth.Caller, ref string, giraID *int64) (Item, error) {
	var out Funcao
	err := s.mutar(ctx, caller, func(ctx context.Context, tx Store) error {
		f, err := s.resolverFuncao(ctx, tx, ref, giraID)
		if err != nil {
			return err
		}
		if err := podeAssumir(caller, Classificar(f.Tipo, f.Chave, f.Descricao)); err != nil {
			return err
		}
		if f.Status != StatusVaga {
			return fmt.Errorf("%w: função já está preenchida", ErrConflict)
		}

		ok, err := tx.AtualizarStatus(ctx, f.ID, StatusVaga, StatusPreenchida, caller.MediumID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: função foi assumida por outra pessoa", ErrConflict)
		}
		if err := tx.RegistrarHistorico(ctx, s.entrada(f.GiraID, &f.ID, caller, AcaoAssumir, nil)); err != nil {
			return err
		}

		f.Status = StatusPreenchida
		f.PessoaID = caller.MediumID
		f.PessoaNome = caller.MediumNome
		out = f
		return nil
	})
	s.registrar(ctx, AcaoAssumir, caller, ref, err)
	if err != nil {
		return Item{}, err
	}
	s.invalidar(ctx, out.GiraID)
	return out.Item(), nil
}

// Liberar devolve a função para Vaga; só o ocupante ou a coordenação podem liberar.
func (s *Service) Liberar(ctx context.Context, caller *auth.Caller, ref string, giraID *int64) (Item, error) {
	var out Funcao
	err := s.mutar(ctx, caller, func(ctx context.Context, tx Store) error {
		f, err := s.resolverFuncao(ctx, tx, ref, giraID)
		if err != nil {
			return err
		}
		if f.Status != StatusPreenchida {
			return fmt.Errorf("%w: função já está vaga", ErrConflict)
		}
		if !podeLiberar(caller, f.PessoaID) {
			return fmt.Errorf("%w: função ocupada por outra pessoa", ErrForbidden)
		}

		ok, err := tx.AtualizarStatus(ctx, f.ID, StatusPreenchida, StatusVaga, nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: função foi liberada por outra pessoa", ErrConflict)
		}
		if err := tx.RegistrarHistorico(ctx, s.entrada(f.GiraID, &f.ID, caller, AcaoLiberar, nil)); err != nil {
			return err
		}

		f.Status = StatusVaga
		f.PessoaID = nil
		f.PessoaNome = ""
		out = f
		return nil
	})
	s.registrar(ctx, AcaoLiberar, caller, ref, err)
	if err != nil {
		return Item{}, err
	}
	s.invalidar(ctx, out.GiraID)
	return out.Item(), nil
}

// Editar aplica a edição da coordenação mantendo status coerente com a pessoa.
func (s *Service) Editar(ctx context.Context, caller *auth.Caller, ref string, giraID *int64, e Edicao) (Item, error) {
	var out Funcao
	err := func() error {
		if caller == nil {
			return ErrUnauthenticated
		}
		if !caller.Privilegiado {
			return fmt.Errorf("%w: apenas a coordenação pode editar funções", ErrForbidden)
		}
		if e.Status != nil && !e.Status.Valido() {
			return fmt.Errorf("%w: status %q", ErrInvalid, *e.Status)
		}

		return s.store.Tx(ctx, func(ctx context.Context, tx Store) error {
			f, err := s.resolverFuncao(ctx, tx, ref, giraID)
			if err != nil {
				return err
			}
			novo, campos, err := aplicarEdicao(ctx, tx, f, e)
			if err != nil {
				return err
			}
			if len(campos) == 0 {
				return fmt.Errorf("%w: nenhum campo alterado", ErrInvalid)
			}
			if err := tx.Editar(ctx, novo); err != nil {
				return err
			}

			var pessoa any
			if novo.PessoaID != nil {
				pessoa = *novo.PessoaID
			}
			info := map[string]any{"pessoa_id": pessoa, "campos": campos}
			if err := tx.RegistrarHistorico(ctx, s.entrada(novo.GiraID, &novo.ID, caller, AcaoEdit, info)); err != nil {
				return err
			}
			out = novo
			return nil
		})
	}()
	s.registrar(ctx, AcaoEdit, caller, ref, err)
	if err != nil {
		return Item{}, err
	}
	s.invalidar(ctx, out.GiraID)
	return out.Item(), nil
}

func aplicarEdicao(ctx context.Context, tx Store, f Funcao, e Edicao) (Funcao, []string, error) {
	novo := f
	var campos []string

	if e.Posicao != nil {
		novo.Posicao = strings.TrimSpace(*e.Posicao)
		campos = append(campos, "posicao")
	}
	if e.Descricao != nil {
		novo.Descricao = strings.TrimSpace(*e.Descricao)
		campos = append(campos, "descricao")
	}

	switch {
	case e.LimparMedium:
		novo.MediumDeLinhaID, novo.MediumDeLinhaNome = nil, ""
		campos = append(campos, "medium_de_linha")
	case e.MediumDeLinhaID != nil:
		m, err := tx.Medium(ctx, *e.MediumDeLinhaID)
		if err != nil {
			return f, nil, err
		}
		id := m.ID
		novo.MediumDeLinhaID, novo.MediumDeLinhaNome = &id, m.Nome
		campos = append(campos, "medium_de_linha")
	}

	switch {
	case e.LimparPessoa:
		novo.PessoaID, novo.PessoaNome = nil, ""
		campos = append(campos, "pessoa")
	case e.PessoaID != nil:
		m, err := tx.Medium(ctx, *e.PessoaID)
		if err != nil {
			return f, nil, err
		}
		if !m.Habilitado {
			return f, nil, fmt.Errorf("%w: médium desabilitado", ErrInvalid)
		}
		id := m.ID
		novo.PessoaID, novo.PessoaNome = &id, m.Nome
		campos = append(campos, "pessoa")
	}

	if e.Status != nil {
		switch *e.Status {
		case StatusVaga:
			if e.PessoaID != nil && !e.LimparPessoa {
				return f, nil, fmt.Errorf("%w: função vaga não pode ter pessoa", ErrInvalid)
			}
			if novo.PessoaID != nil {
				novo.PessoaID, novo.PessoaNome = nil, ""
				campos = append(campos, "pessoa")
			}
		case StatusPreenchida:
			if novo.PessoaID == nil {
				return f, nil, fmt.Errorf("%w: função preenchida precisa de pessoa", ErrInvalid)
			}
		}
		campos = append(campos, "status")
	}

	if novo.PessoaID != nil {
		novo.Status = StatusPreenchida
	} else {
		novo.Status = StatusVaga
	}
	if novo.Status != f.Status && e.Status == nil {
		campos = append(campos, "status")
	}
	return novo, campos, nil
}

// Historico lista a auditoria da gira em ordem cronológica.
func (s *Service) Historico(ctx context.Context, caller *auth.Caller, giraID int64) ([]Historico, error) {
	if err := exigirCoordenacao(caller); err != nil {
		return nil, err
	}
	if _, err := s.store.Gira(ctx, giraID); err != nil {
		return nil, err
	}
	return s.store.ListHistorico(ctx, giraID)
}

// ListGiras navega pelas giras da mais recente para a mais antiga.
func (s *Service) ListGiras(ctx context.Context, caller *auth.Caller, limit, offset int) ([]Gira, error) {
	if err := exigirCoordenacao(caller); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListGiras(ctx, limit, offset)
}

// NovaGira são os dados informados pela coordenação ao abrir uma gira.
type NovaGira struct {
	Titulo   string
	DataHora time.Time
	Linha    string
}

// CriarGira abre uma gira com as funções do template.
func (s *Service) CriarGira(ctx context.Context, caller *auth.Caller, nova NovaGira, tpl Template) (Gira, error) {
	if err := exigirCoordenacao(caller); err != nil {
		return Gira{}, err
	}
	g := Gira{
		Titulo:   strings.TrimSpace(nova.Titulo),
		DataHora: nova.DataHora,
		Linha:    strings.TrimSpace(nova.Linha),
		Status:   "ativa",
	}
	if caller.UsuarioID != 0 {
		id := caller.UsuarioID
		g.CriadoPor = &id
	}
	return s.criarGira(ctx, g, tpl)
}

// CriarGiraSistema é usada pela linha de comando, sem usuário autenticado.
func (s *Service) CriarGiraSistema(ctx context.Context, nova NovaGira, tpl Template) (Gira, error) {
	return s.criarGira(ctx, Gira{
		Titulo:   strings.TrimSpace(nova.Titulo),
		DataHora: nova.DataHora,
		Linha:    strings.TrimSpace(nova.Linha),
		Status:   "ativa",
	}, tpl)
}

func (s *Service) criarGira(ctx context.Context, g Gira, tpl Template) (Gira, error) {
	if g.Titulo == "" {
		return Gira{}, fmt.Errorf("%w: título obrigatório", ErrInvalid)
	}
	if g.DataHora.IsZero() {
		return Gira{}, fmt.Errorf("%w: data obrigatória", ErrInvalid)
	}
	funcoes := tpl.Expandir()
	if len(funcoes) == 0 {
		return Gira{}, fmt.Errorf("%w: template sem funções", ErrInvalid)
	}

	var criada Gira
	err := s.store.Tx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		criada, err = tx.CriarGira(ctx, g, funcoes)
		return err
	})
	if err != nil {
		return Gira{}, err
	}
	log.Info().Int64("gira_id", criada.ID).Str("titulo", criada.Titulo).Int("funcoes", len(funcoes)).Msg("gira criada")
	return criada, nil
}

// mutar valida o chamador e roda fn numa transação.
func (s *Service) mutar(ctx context.Context, caller *auth.Caller, fn func(ctx context.Context, tx Store) error) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if caller.MediumID == nil {
		return fmt.Errorf("%w: usuário sem médium vinculado", ErrNotFound)
	}
	return s.store.Tx(ctx, fn)
}

func (s *Service) gira(ctx context.Context, store Store, giraID *int64) (Gira, error) {
	if giraID != nil {
		return store.Gira(ctx, *giraID)
	}
	return store.UltimaGira(ctx)
}

// resolverFuncao tenta id numérico primeiro e depois a chave na gira selecionada.
func (s *Service) resolverFuncao(ctx context.Context, tx Store, ref string, giraID *int64) (Funcao, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Funcao{}, fmt.Errorf("%w: função não informada", ErrInvalid)
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		f, err := tx.Funcao(ctx, id, true)
		switch {
		case err == nil && (giraID == nil || f.GiraID == *giraID):
			return f, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return Funcao{}, err
		}
	}

	g, err := s.gira(ctx, tx, giraID)
	if err != nil {
		return Funcao{}, err
	}
	return tx.FuncaoPorChave(ctx, g.ID, ref, true)
}

// podeAssumir barra médium desabilitado e cambone sem coordenação.
func podeAssumir(caller *auth.Caller, categoria Categoria) error {
	if !caller.MediumHabilitado {
		return fmt.Errorf("%w: médium desabilitado", ErrForbidden)
	}
	if categoria == Cambones && !caller.Privilegiado {
		return fmt.Errorf("%w: apenas a coordenação pode assumir funções de cambone", ErrForbidden)
	}
	return nil
}

func podeLiberar(caller *auth.Caller, pessoa *int64) bool {
	if caller.Privilegiado {
		return true
	}
	return pessoa != nil && caller.MediumID != nil && *pessoa == *caller.MediumID
}

func exigirCoordenacao(caller *auth.Caller) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !caller.Privilegiado {
		return fmt.Errorf("%w: acesso restrito à coordenação", ErrForbidden)
	}
	return nil
}

func (s *Service) entrada(giraID int64, funcaoID *int64, caller *auth.Caller, acao string, info map[string]any) Historico {
	if info == nil {
		info = map[string]any{
			"usuario_id": caller.UsuarioID,
			"celular":    caller.Celular,
			"nome":       caller.Nome,
			"medium_id":  caller.MediumID,
		}
	}
	usuarioID := caller.UsuarioID
	return Historico{
		GiraID:    giraID,
		FuncaoID:  funcaoID,
		UsuarioID: &usuarioID,
		Acao:      acao,
		Data:      s.now().UTC(),
		Info:      info,
	}
}

func (s *Service) invalidar(ctx context.Context, giraID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, painelKey(giraID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Int64("gira_id", giraID).Msg("falha ao invalidar cache do painel")
	}
}

func (s *Service) registrar(ctx context.Context, acao string, caller *auth.Caller, ref string, err error) {
	resultado := Resultado(err)
	obs.Transicao(acao, resultado)

	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}
	var usuario int64
	if caller != nil {
		usuario = caller.UsuarioID
	}
	if err != nil {
		logger.Warn().Err(err).Str("acao", acao).Str("funcao", ref).Int64("usuario_id", usuario).Str("resultado", resultado).Msg("transição recusada")
		return
	}
	logger.Info().Str("acao", acao).Str("funcao", ref).Int64("usuario_id", usuario).Msg("transição aplicada")
}

// Resultado traduz o erro em rótulo curto para métricas e logs.
func Resultado(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthenticated):
		return "nao_autenticado"
	case errors.Is(err, ErrNotFound):
		return "nao_encontrado"
	case errors.Is(err, ErrConflict):
		return "conflito"
	case errors.Is(err, ErrTemporal):
		return "temporal"
	case errors.Is(err, ErrForbidden):
		return "proibido"
	case errors.Is(err, ErrInvalid):
		return "invalido"
	default:
		return "erro"
	}
}
