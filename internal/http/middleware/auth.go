package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/terreiro/giras/internal/auth"
)

type contextKey string

const (
	ContextKeyRoles  contextKey = "roles"
	ContextKeyCaller contextKey = "caller"
)

// SessionCookie é o cookie alternativo ao header Authorization.
const SessionCookie = "sessao"

// SessionResolver transforma o token de sessão na identidade do chamador.
type SessionResolver interface {
	ResolveCaller(ctx context.Context, token string) (auth.Caller, error)
}

// TokenFromRequest lê o token do header Bearer ou do cookie de sessão.
func TokenFromRequest(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// Auth valida a sessão e injeta o chamador no contexto.
func Auth(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "AUTH", "token ausente")
				return
			}

			caller, err := resolver.ResolveCaller(r.Context(), token)
			switch {
			case errors.Is(err, auth.ErrSessionInvalid):
				writeError(w, http.StatusUnauthorized, "AUTH", "sessão inválida ou expirada")
				return
			case err != nil:
				log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("falha ao resolver sessão")
				writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// WithCaller grava o chamador e os dados derivados no contexto.
func WithCaller(ctx context.Context, caller auth.Caller) context.Context {
	ctx = context.WithValue(ctx, ContextKeyCaller, &caller)
	return context.WithValue(ctx, ContextKeyRoles, caller.Roles())
}

// GetCaller devolve nil quando a requisição não foi autenticada.
func GetCaller(ctx context.Context) *auth.Caller {
	val, _ := ctx.Value(ContextKeyCaller).(*auth.Caller)
	return val
}

// GetRoles recupera roles do contexto.
func GetRoles(ctx context.Context) []string {
	val, _ := ctx.Value(ContextKeyRoles).([]string)
	return val
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
