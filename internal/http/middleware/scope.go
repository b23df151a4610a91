package middleware

import (
	"net/http"
	"strings"

	"github.com/terreiro/giras/internal/auth"
)

// RequireStaff restringe a rota à coordenação (staff ou superusuário).
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := GetCaller(r.Context())
		if caller == nil {
			writeError(w, http.StatusUnauthorized, "AUTH", "sessão inválida ou ausente")
			return
		}
		if !caller.Privilegiado || !hasRole(GetRoles(r.Context()), auth.RoleStaff) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "acesso restrito à coordenação")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}
