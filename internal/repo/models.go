package repo

import (
	"time"
)

// Usuario representa a identidade de login (celular).
type Usuario struct {
	ID        int64
	Celular   string
	Nome      string
	Email     *string
	SenhaHash *string
	Ativo     bool
	Staff     bool
	Superuser bool
	CriadoEm  time.Time
}

// Privilegiado indica acesso de coordenação.
func (u Usuario) Privilegiado() bool {
	return u.Staff || u.Superuser
}

// Medium representa o perfil de participante das giras.
type Medium struct {
	ID         int64
	Nome       string
	Habilitado bool
	UsuarioID  *int64
	FotoURL    *string
}

// Passkey modela credenciais WebAuthn de um usuário.
type Passkey struct {
	ID           int64
	UsuarioID    int64
	CredentialID []byte
	PublicKey    []byte
	SignCount    uint32
	Transports   []string
	AAGUID       []byte
	Cloned       bool
	CriadoEm     time.Time
}
