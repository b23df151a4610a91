package funcoes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/terreiro/giras/internal/auth"
	httpmiddleware "github.com/terreiro/giras/internal/http/middleware"
)

// Handler expõe o painel de funções e a área da coordenação.
type Handler struct {
	service  *Service
	template Template
}

func NewHandler(service *Service, template Template) *Handler {
	return &Handler{service: service, template: template}
}

// RegisterRoutes espera um router já autenticado.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/funcoes", func(r chi.Router) {
		r.Get("/", h.handlePainel)
		r.Post("/assumir", h.handleAssumir)
		r.Post("/desistir", h.handleLiberar)
		r.With(httpmiddleware.RequireStaff).Patch("/{ref}", h.handleEditar)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httpmiddleware.RequireStaff)
			r.Get("/giras", h.handleListGiras)
			r.Post("/giras", h.handleCriarGira)
			r.Get("/giras/{id}", h.handleGira)
			r.Get("/giras/{id}/historico", h.handleHistorico)
			r.Post("/giras/{id}/snapshot", h.handleGerarSnapshot)
			r.Get("/giras/{id}/snapshot", h.handleSnapshot)
		})
		r.Post("/snapshot/{id}/assumir", h.handleAssumirSnapshot)
		r.Post("/snapshot/{id}/liberar", h.handleLiberarSnapshot)
	})
}

type transicaoPayload struct {
	Funcao json.RawMessage `json:"funcao"`
	GiraID *int64          `json:"gira_id"`
}

// ref aceita a função como número ou chave textual.
func (p transicaoPayload) ref() string {
	raw := strings.TrimSpace(string(p.Funcao))
	var s string
	if json.Unmarshal(p.Funcao, &s) == nil {
		return strings.TrimSpace(s)
	}
	return raw
}

func (h *Handler) handlePainel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	caller := httpmiddleware.GetCaller(ctx)

	var giraID *int64
	if raw := r.URL.Query().Get("gira_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "gira inválida", nil)
			return
		}
		giraID = &id
	}

	painel, err := h.service.Painel(ctx, caller, giraID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "GET /funcoes", caller, start)
	writeJSON(w, http.StatusOK, painel)
}

func (h *Handler) handleAssumir(w http.ResponseWriter, r *http.Request) {
	h.transicao(w, r, "POST /funcoes/assumir", h.service.Assumir)
}

func (h *Handler) handleLiberar(w http.ResponseWriter, r *http.Request) {
	h.transicao(w, r, "POST /funcoes/desistir", h.service.Liberar)
}

func (h *Handler) transicao(w http.ResponseWriter, r *http.Request, label string, fn func(context.Context, *auth.Caller, string, *int64) (Item, error)) {
	ctx := r.Context()
	start := time.Now()
	caller := httpmiddleware.GetCaller(ctx)

	var payload transicaoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	item, err := fn(ctx, caller, payload.ref(), payload.GiraID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, label, caller, start)
	writeJSON(w, http.StatusOK, item)
}

type edicaoPayload struct {
	Posicao         *string         `json:"posicao"`
	Descricao       *string         `json:"descricao"`
	MediumDeLinhaID json.RawMessage `json:"medium_de_linha_id"`
	PessoaID        json.RawMessage `json:"pessoa_id"`
	Status          *Status         `json:"status"`
}

// idOpcional distingue campo ausente, null (limpar) e um id.
func idOpcional(raw json.RawMessage) (*int64, bool, error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	if strings.TrimSpace(string(raw)) == "null" {
		return nil, true, nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, false, err
	}
	return &id, false, nil
}

func (p edicaoPayload) edicao() (Edicao, error) {
	e := Edicao{Posicao: p.Posicao, Descricao: p.Descricao, Status: p.Status}
	var err error
	if e.MediumDeLinhaID, e.LimparMedium, err = idOpcional(p.MediumDeLinhaID); err != nil {
		return e, err
	}
	if e.PessoaID, e.LimparPessoa, err = idOpcional(p.PessoaID); err != nil {
		return e, err
	}
	return e, nil
}

func (h *Handler) handleEditar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	caller := httpmiddleware.GetCaller(ctx)

	var giraID *int64
	if raw := r.URL.Query().Get("gira_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "gira inválida", nil)
			return
		}
		giraID = &id
	}

	var payload edicaoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}
	edicao, err := payload.edicao()
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "médium inválido", nil)
		return
	}

	item, err := h.service.Editar(ctx, caller, chi.URLParam(r, "ref"), giraID, edicao)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "PATCH /funcoes", caller, start)
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleListGiras(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	giras, err := h.service.ListGiras(ctx, httpmiddleware.GetCaller(ctx), limit, offset)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"giras": giras, "limit": limit, "offset": offset})
}

func (h *Handler) handleCriarGira(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	caller := httpmiddleware.GetCaller(ctx)

	var payload struct {
		Titulo   string    `json:"titulo"`
		DataHora time.Time `json:"data_hora"`
		Linha    string    `json:"linha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "payload inválido", nil)
		return
	}

	g, err := h.service.CriarGira(ctx, caller, NovaGira{Titulo: payload.Titulo, DataHora: payload.DataHora, Linha: payload.Linha}, h.template)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /admin/giras", caller, start)
	writeJSON(w, http.StatusCreated, g)
}

func (h *Handler) handleGira(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	painel, err := h.service.Painel(ctx, httpmiddleware.GetCaller(ctx), &id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, painel)
}

func (h *Handler) handleHistorico(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entradas, err := h.service.Historico(ctx, httpmiddleware.GetCaller(ctx), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"historico": entradas})
}

func (h *Handler) handleGerarSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	caller := httpmiddleware.GetCaller(ctx)
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	total, err := h.service.GerarSnapshot(ctx, caller, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	logRequest(ctx, "POST /admin/giras/snapshot", caller, start)
	writeJSON(w, http.StatusOK, map[string]any{"gira_id": id, "funcoes": total})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	painel, err := h.service.Snapshot(ctx, httpmiddleware.GetCaller(ctx), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, painel)
}

func (h *Handler) handleAssumirSnapshot(w http.ResponseWriter, r *http.Request) {
	h.transicaoSnapshot(w, r, "POST /admin/snapshot/assumir", h.service.AssumirSnapshot)
}

func (h *Handler) handleLiberarSnapshot(w http.ResponseWriter, r *http.Request) {
	h.transicaoSnapshot(w, r, "POST /admin/snapshot/liberar", h.service.LiberarSnapshot)
}

func (h *Handler) transicaoSnapshot(w http.ResponseWriter, r *http.Request, label string, fn func(context.Context, *auth.Caller, int64) (Item, error)) {
	ctx := r.Context()
	start := time.Now()
	caller := httpmiddleware.GetCaller(ctx)
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := fn(ctx, caller, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	logRequest(ctx, label, caller, start)
	writeJSON(w, http.StatusOK, item)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identificador inválido", nil)
		return 0, false
	}
	return id, true
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrTemporal):
		writeError(w, http.StatusForbidden, "TEMPORAL", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("funcoes handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func logRequest(ctx context.Context, label string, caller *auth.Caller, start time.Time) {
	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}
	var usuario int64
	if caller != nil {
		usuario = caller.UsuarioID
	}
	reqID := chimiddleware.GetReqID(ctx)
	logger.Info().Str("request_id", reqID).Int64("usuario_id", usuario).Str("label", label).Dur("duration", time.Since(start)).Msg("funcoes_request")
}

type successEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

type errorEnvelope struct {
	Data  any            `json:"data"`
	Error *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: payload, Error: nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Data: nil, Error: &errorResponse{Code: code, Message: message, Details: details}})
}
