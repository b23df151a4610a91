package auth

// Caller é a identidade resolvida a partir do token de sessão.
type Caller struct {
	UsuarioID    int64
	Celular      string
	Nome         string
	Privilegiado bool
	// MediumID é nil quando o usuário não tem perfil de médium vinculado.
	MediumID         *int64
	MediumNome       string
	MediumHabilitado bool
}

// Roles devolve os papéis equivalentes aos privilégios do chamador.
func (c Caller) Roles() []string {
	return RolesFor(c.Privilegiado)
}
