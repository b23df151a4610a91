package util

import (
	"errors"
	"strings"
	"unicode"
)

// NormalizeCelular mantém apenas os dígitos do número informado.
func NormalizeCelular(celular string) string {
	var b strings.Builder
	for _, r := range celular {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCelular exige entre 10 e 15 dígitos após normalização.
func ValidateCelular(celular string) error {
	digits := NormalizeCelular(celular)
	if digits == "" {
		return errors.New("celular obrigatório")
	}
	if len(digits) < 10 || len(digits) > 15 {
		return errors.New("celular inválido")
	}
	return nil
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}
