package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port             int             `env:"PORT" envDefault:"8080"`
	DBDSN            string          `env:"DB_DSN"`
	RedisURL         string          `env:"REDIS_URL"`
	JWTSecret        string          `env:"JWT_SECRET"`
	SessionTTL       time.Duration   `env:"SESSION_TTL" envDefault:"720h"`
	AllowOrigins     []string        `env:"ALLOW_ORIGINS" envSeparator:","`
	Timezone         string          `env:"TIMEZONE" envDefault:"America/Sao_Paulo"`
	GiraTemplate     string          `env:"GIRA_TEMPLATE" envDefault:"config/gira.yaml"`
	PainelCacheTTL   time.Duration   `env:"PAINEL_CACHE_TTL" envDefault:"30s"`
	WebAuthnRPID     string          `env:"WEBAUTHN_RP_ID" envDefault:"localhost"`
	WebAuthnRPOrigin string          `env:"WEBAUTHN_RP_ORIGIN" envDefault:"http://localhost:5173"`
	WebAuthnRPName   string          `env:"WEBAUTHN_RP_NAME" envDefault:"Giras"`
	RateLimitPublic  RateLimitConfig `envPrefix:"RATE_PUBLIC_"`
	RateLimitAuth    RateLimitConfig `envPrefix:"RATE_AUTH_"`

	Location *time.Location `env:"-"`
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RPS" envDefault:"10"`
	Burst             int     `env:"BURST" envDefault:"20"`
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ambiente: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return errors.New("PORT inválida")
	}

	c.DBDSN = strings.TrimSpace(c.DBDSN)
	if c.DBDSN == "" {
		return errors.New("DB_DSN obrigatório")
	}

	c.RedisURL = strings.TrimSpace(c.RedisURL)
	if c.RedisURL == "" {
		return errors.New("REDIS_URL obrigatório")
	}

	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL inválido")
	}

	origins := make([]string, 0, len(c.AllowOrigins))
	for _, origin := range c.AllowOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	c.AllowOrigins = origins

	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return err
	}
	c.Location = loc

	if c.RateLimitPublic.RequestsPerSecond <= 0 || c.RateLimitPublic.Burst <= 0 {
		c.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	}
	if c.RateLimitAuth.RequestsPerSecond <= 0 || c.RateLimitAuth.Burst <= 0 {
		c.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}
	}

	if strings.TrimSpace(c.WebAuthnRPID) == "" {
		c.WebAuthnRPID = "localhost"
	}
	if strings.TrimSpace(c.WebAuthnRPName) == "" {
		c.WebAuthnRPName = "Giras"
	}

	return nil
}

// ToolConfig cobre os utilitários de linha de comando, que só falam com o banco.
type ToolConfig struct {
	DBDSN        string `env:"DB_DSN"`
	DatabaseURL  string `env:"DATABASE_URL"`
	Timezone     string `env:"TIMEZONE" envDefault:"America/Sao_Paulo"`
	GiraTemplate string `env:"GIRA_TEMPLATE" envDefault:"config/gira.yaml"`

	Location *time.Location `env:"-"`
}

// LoadTool carrega a configuração das CLIs; DATABASE_URL vale quando DB_DSN falta.
// O DSN pode ficar vazio para que a CLI aceite a flag --dsn.
func LoadTool() (*ToolConfig, error) {
	_ = godotenv.Load()

	cfg := &ToolConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ambiente: %w", err)
	}

	cfg.DBDSN = strings.TrimSpace(cfg.DBDSN)
	if cfg.DBDSN == "" {
		cfg.DBDSN = strings.TrimSpace(cfg.DatabaseURL)
	}
	cfg.GiraTemplate = strings.TrimSpace(cfg.GiraTemplate)

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	cfg.Location = loc
	return cfg, nil
}

func loadLocation(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE inválido: %w", err)
	}
	return loc, nil
}
