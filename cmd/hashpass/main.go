package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/terreiro/giras/internal/auth"
)

// hashpass gera o hash argon2id gravado em usuarios.senha_hash para a coordenação.
func main() {
	fs := pflag.NewFlagSet("hashpass", pflag.ContinueOnError)
	stdin := fs.Bool("stdin", false, "lê a senha da entrada padrão")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	var senha string
	switch {
	case *stdin:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "leitura: %v\n", err)
			os.Exit(1)
		}
		senha = strings.TrimRight(line, "\r\n")
	case fs.NArg() == 1:
		senha = fs.Arg(0)
	default:
		fmt.Fprintln(os.Stderr, "uso: hashpass <senha> | hashpass --stdin")
		os.Exit(1)
	}

	if senha == "" {
		fmt.Fprintln(os.Stderr, "senha vazia")
		os.Exit(1)
	}

	hash, err := auth.Hash(senha)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
