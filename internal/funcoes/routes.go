package funcoes

import (
	"github.com/go-chi/chi/v5"
)

// Mount adiciona as rotas de funções e da coordenação no router autenticado.
func Mount(r chi.Router, handler *Handler) {
	handler.RegisterRoutes(r)
}
