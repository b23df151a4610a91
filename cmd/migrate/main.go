package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/terreiro/giras/internal/config"
	"github.com/terreiro/giras/internal/migrate"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	cfg, err := config.LoadTool()
	if err != nil {
		log.Fatal().Err(err).Msg("configuração inválida")
	}

	var (
		dsn        = pflag.String("dsn", cfg.DBDSN, "DSN do Postgres (DB_DSN ou DATABASE_URL)")
		migrations = pflag.String("migrations", "migrations", "diretório das migrações")
		seeds      = pflag.String("seeds", "migrations/seeds", "diretório dos seeds")
	)
	pflag.Parse()

	if strings.TrimSpace(*dsn) == "" {
		log.Fatal().Msg("defina --dsn ou DB_DSN")
	}
	if pflag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "uso: migrate [up|down|seed|status]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("abrir banco")
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrations, *seeds)

	switch cmd := pflag.Arg(0); cmd {
	case "up":
		var novas []string
		novas, err = mgr.Up(ctx)
		if err == nil && len(novas) == 0 {
			log.Info().Msg("nenhuma migração pendente")
		}
	case "down":
		_, err = mgr.Down(ctx)
	case "seed":
		_, err = mgr.Seed(ctx)
	case "status":
		var aplicadas []migrate.Aplicada
		aplicadas, err = mgr.Status(ctx)
		for _, a := range aplicadas {
			fmt.Printf("%s\t%s\n", a.AplicadaEm.Format(time.RFC3339), a.Nome)
		}
	default:
		log.Fatal().Str("comando", cmd).Msg("comando desconhecido")
	}
	if err != nil {
		log.Fatal().Err(err).Str("comando", pflag.Arg(0)).Msg("migrate falhou")
	}
}
