package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/terreiro/giras/internal/http/middleware"
	"github.com/terreiro/giras/internal/repo"
	"github.com/terreiro/giras/internal/service"
)

// Login autentica pelo celular (e senha, para a coordenação).
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Celular string `json:"celular"`
		Senha   string `json:"senha"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if strings.TrimSpace(payload.Celular) == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "celular é obrigatório", nil)
		return
	}

	result, err := h.authService.LoginCelular(r.Context(), payload.Celular, payload.Senha)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeLoginSuccess(w, result)
}

// Logout encerra a sessão atual.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := httpmiddleware.TokenFromRequest(r); token != "" {
		if err := h.authService.Logout(r.Context(), token); err != nil {
			log.Warn().Err(err).Msg("logout: falha ao remover sessão")
		}
	}

	h.setSessionCookie(w, "", time.Time{})
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me retorna informações do usuário autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller := httpmiddleware.GetCaller(r.Context())
	if caller == nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "sessão inválida", nil)
		return
	}

	profile, err := h.authService.GetMe(r.Context(), caller.UsuarioID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusUnauthorized, "AUTH", "sessão inválida", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "não foi possível carregar perfil", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"usuario": profile})
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, service.ErrPasswordRequired):
		WriteError(w, http.StatusUnauthorized, "PASSWORD_REQUIRED", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("auth handler error")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro ao autenticar", nil)
	}
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, result *service.LoginResult) {
	h.setSessionCookie(w, result.Token, result.Expires)

	WriteJSON(w, http.StatusOK, map[string]any{
		"token":      result.Token,
		"expires_at": result.Expires,
		"usuario":    result.Profile,
	})
}

// setSessionCookie grava o token; token vazio apaga o cookie.
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	c := &http.Cookie{
		Name:     httpmiddleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   !h.devCookies,
		SameSite: sameSite,
	}
	if token == "" {
		c.Expires = time.Time{}
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
