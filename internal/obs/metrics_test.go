package obs

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	Init()
	Init()

	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/funcoes/{ref}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/funcoes/42", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	Transicao("assumir", "ok")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	if !strings.Contains(text, `path="/funcoes/{ref}"`) {
		t.Fatalf("expected route pattern label, got:\n%s", text)
	}
	if strings.Contains(text, `path="/funcoes/42"`) {
		t.Fatal("raw path leaked into labels")
	}
	if !strings.Contains(text, `gira_funcao_transicoes_total{acao="assumir",resultado="ok"}`) {
		t.Fatal("transition counter not exported")
	}
}
