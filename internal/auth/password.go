package auth

import (
	"errors"
	"strings"

	"github.com/alexedwards/argon2id"
)

var params = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash gera um hash Argon2id para contas de coordenação.
func Hash(senha string) (string, error) {
	if len(strings.TrimSpace(senha)) < 8 {
		return "", errors.New("senha deve ter pelo menos 8 caracteres")
	}
	return argon2id.CreateHash(senha, params)
}

// Verify compara a senha com o hash Argon2id (lendo parâmetros do próprio hash).
func Verify(senha, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(senha, encodedHash)
}
