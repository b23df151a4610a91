package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/giras")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ALLOW_ORIGINS", " http://localhost:5173 ,, https://giras.example ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Port)
	}
	if cfg.SessionTTL != 720*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if len(cfg.AllowOrigins) != 2 || cfg.AllowOrigins[1] != "https://giras.example" {
		t.Fatalf("origins not normalized: %v", cfg.AllowOrigins)
	}
	if cfg.Location == nil || cfg.Location.String() != "America/Sao_Paulo" {
		t.Fatalf("unexpected location %v", cfg.Location)
	}
	if cfg.RateLimitPublic.Burst != 20 {
		t.Fatalf("unexpected public burst %d", cfg.RateLimitPublic.Burst)
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "curto")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short JWT_SECRET")
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TIMEZONE", "Lua/Crateras")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid TIMEZONE")
	}
}

func TestLoadToolUsaDatabaseURLComoReserva(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("DATABASE_URL", " postgres://localhost/giras ")
	t.Setenv("TIMEZONE", "America/Manaus")

	cfg, err := LoadTool()
	if err != nil {
		t.Fatalf("load tool: %v", err)
	}
	if cfg.DBDSN != "postgres://localhost/giras" {
		t.Fatalf("expected DATABASE_URL fallback, got %q", cfg.DBDSN)
	}
	if cfg.Location.String() != "America/Manaus" || cfg.GiraTemplate != "config/gira.yaml" {
		t.Fatalf("unexpected tool config %+v", cfg)
	}

	t.Setenv("DB_DSN", "postgres://primario/giras")
	cfg, err = LoadTool()
	if err != nil {
		t.Fatalf("load tool: %v", err)
	}
	if cfg.DBDSN != "postgres://primario/giras" {
		t.Fatalf("DB_DSN must win, got %q", cfg.DBDSN)
	}
}

func TestLoadToolRejeitaFusoInvalido(t *testing.T) {
	t.Setenv("TIMEZONE", "Lua/Crateras")
	if _, err := LoadTool(); err == nil {
		t.Fatal("expected error for invalid TIMEZONE")
	}
}
