package auth

import (
	"errors"
	"fmt"
)

// ErrSessionInvalid indica token inválido, expirado ou encerrado.
var ErrSessionInvalid = errors.New("sessão inválida")

// SessionRedisKey monta a chave que marca uma sessão como ativa.
func SessionRedisKey(jti string) string {
	return fmt.Sprintf("sessao:%s", jti)
}

// RolesFor traduz privilégios do usuário em papéis do token.
func RolesFor(privilegiado bool) []string {
	if privilegiado {
		return []string{RoleStaff, RoleMedium}
	}
	return []string{RoleMedium}
}

const (
	RoleStaff  = "STAFF"
	RoleMedium = "MEDIUM"
)
