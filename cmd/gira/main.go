package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/terreiro/giras/internal/config"
	"github.com/terreiro/giras/internal/db"
	"github.com/terreiro/giras/internal/funcoes"
	"github.com/terreiro/giras/internal/util"
)

const layoutData = "2006-01-02 15:04"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadTool()
	if err != nil {
		log.Fatal().Err(err).Msg("configuração inválida")
	}
	if cfg.DBDSN == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	repository := funcoes.NewRepository(pool)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create":
		if err := runCreate(ctx, cfg, repository, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar gira")
		}
	case "list":
		if err := runList(ctx, repository, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao listar giras")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "gira CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  gira create --titulo \"Gira de Exu\" --data \"2025-06-14 20:00\" [--linha Exu] [--template config/gira.yaml]")
	fmt.Fprintln(os.Stderr, "  gira list [--limit 20]")
}

func runCreate(ctx context.Context, cfg *config.ToolConfig, repository *funcoes.Repository, args []string) error {
	fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		titulo   = fs.String("titulo", "", "título da gira (ex.: Gira de Exu)")
		data     = fs.String("data", "", "data e hora locais no formato 2006-01-02 15:04")
		linha    = fs.String("linha", "", "linha trabalhada")
		template = fs.String("template", cfg.GiraTemplate, "arquivo YAML com as funções")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := util.RequireString(*titulo, "titulo"); err != nil {
		return err
	}
	if err := util.RequireString(*data, "data"); err != nil {
		return err
	}

	dataHora, err := time.ParseInLocation(layoutData, *data, cfg.Location)
	if err != nil {
		return fmt.Errorf("data inválida: %w", err)
	}

	tpl, err := funcoes.CarregarTemplate(*template)
	if err != nil {
		return err
	}

	service := funcoes.NewService(repository, funcoes.WithLocation(cfg.Location))
	gira, err := service.CriarGiraSistema(ctx, funcoes.NovaGira{Titulo: *titulo, DataHora: dataHora, Linha: *linha}, tpl)
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(gira, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runList(ctx context.Context, repository *funcoes.Repository, args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 20, "quantidade máxima")
	if err := fs.Parse(args); err != nil {
		return err
	}

	giras, err := repository.ListGiras(ctx, *limit, 0)
	if err != nil {
		return err
	}

	if len(giras) == 0 {
		fmt.Println("nenhuma gira cadastrada")
		return nil
	}

	encoded, _ := json.MarshalIndent(giras, "", "  ")
	fmt.Println(string(encoded))
	return nil
}
