package funcoes

import (
	"errors"
	"time"
)

var (
	ErrUnauthenticated = errors.New("sessão inválida ou ausente")
	ErrNotFound        = errors.New("registro não encontrado")
	ErrConflict        = errors.New("estado da função mudou")
	ErrForbidden       = errors.New("sem permissão")
	ErrTemporal        = errors.New("gira já passou")
	ErrInvalid         = errors.New("dados inválidos")
)

// Categoria agrupa funções no painel.
type Categoria string

const (
	Cambones    Categoria = "cambones"
	Organizacao Categoria = "organizacao"
	Limpeza     Categoria = "limpeza"
)

// Status de ocupação de uma função.
type Status string

const (
	StatusVaga       Status = "Vaga"
	StatusPreenchida Status = "Preenchida"
)

// Valido indica se o valor pertence ao enum.
func (s Status) Valido() bool {
	return s == StatusVaga || s == StatusPreenchida
}

const (
	AcaoAssumir = "assumir"
	AcaoLiberar = "liberar"
	AcaoEdit    = "edit"
)

// placeholder exibido quando ninguém ocupa nem está vinculado à função.
const semNome = "—"

type Gira struct {
	ID        int64     `json:"id"`
	Titulo    string    `json:"titulo"`
	DataHora  time.Time `json:"data_hora"`
	Linha     string    `json:"linha"`
	Status    string    `json:"status"`
	CriadoPor *int64    `json:"criado_por,omitempty"`
}

// Funcao é a vaga de trabalho ao vivo de uma gira.
type Funcao struct {
	ID                int64
	GiraID            int64
	Chave             string
	Tipo              string
	Posicao           string
	Descricao         string
	Status            Status
	MediumDeLinhaID   *int64
	MediumDeLinhaNome string
	PessoaID          *int64
	PessoaNome        string
}

// SnapshotFuncao é a cópia desnormalizada usada na visão administrativa.
type SnapshotFuncao struct {
	ID                int64
	GiraID            int64
	FuncaoID          *int64
	Chave             string
	Tipo              string
	Posicao           string
	Descricao         string
	Status            Status
	MediumDeLinhaNome string
	PessoaID          *int64
	PessoaNome        string
	AtualizadoEm      time.Time
}

type Medium struct {
	ID         int64  `json:"id"`
	Nome       string `json:"nome"`
	Habilitado bool   `json:"habilitado"`
}

// Historico é uma entrada imutável de auditoria.
type Historico struct {
	ID        int64          `json:"id"`
	GiraID    int64          `json:"gira_id"`
	FuncaoID  *int64         `json:"funcao_id,omitempty"`
	UsuarioID *int64         `json:"usuario_id,omitempty"`
	Acao      string         `json:"acao"`
	Data      time.Time      `json:"data"`
	Info      map[string]any `json:"info"`
}

// Edicao carrega os campos alterados por um coordenador; nil mantém o valor.
type Edicao struct {
	Posicao         *string
	Descricao       *string
	MediumDeLinhaID *int64
	LimparMedium    bool
	PessoaID        *int64
	LimparPessoa    bool
	Status          *Status
}

// Item é a visão de uma função entregue ao front-end.
type Item struct {
	ID            int64     `json:"id"`
	Chave         string    `json:"chave"`
	Tipo          string    `json:"tipo"`
	Posicao       string    `json:"posicao"`
	Descricao     string    `json:"descricao"`
	Status        Status    `json:"status"`
	Categoria     Categoria `json:"categoria"`
	MediumDeLinha string    `json:"medium_de_linha,omitempty"`
	PessoaID      *int64    `json:"pessoa_id"`
	Pessoa        string    `json:"pessoa,omitempty"`
	NomeExibicao  string    `json:"nome_exibicao"`
	Rotulo        string    `json:"rotulo,omitempty"`
}

// Painel agrupa os itens de uma gira já ordenados por categoria.
type Painel struct {
	Gira        Gira   `json:"gira"`
	Cambones    []Item `json:"cambones"`
	Organizacao []Item `json:"organizacao"`
	Limpeza     []Item `json:"limpeza"`
}

// NomeExibicao resolve o nome mostrado para uma função.
func NomeExibicao(pessoa, mediumDeLinha string) string {
	if pessoa != "" {
		return pessoa
	}
	if mediumDeLinha != "" {
		return mediumDeLinha
	}
	return semNome
}

func (f Funcao) Item() Item {
	return Item{
		ID:            f.ID,
		Chave:         f.Chave,
		Tipo:          f.Tipo,
		Posicao:       f.Posicao,
		Descricao:     f.Descricao,
		Status:        f.Status,
		Categoria:     Classificar(f.Tipo, f.Chave, f.Descricao),
		MediumDeLinha: f.MediumDeLinhaNome,
		PessoaID:      f.PessoaID,
		Pessoa:        f.PessoaNome,
		NomeExibicao:  NomeExibicao(f.PessoaNome, f.MediumDeLinhaNome),
	}
}

func (s SnapshotFuncao) Item() Item {
	return Item{
		ID:            s.ID,
		Chave:         s.Chave,
		Tipo:          s.Tipo,
		Posicao:       s.Posicao,
		Descricao:     s.Descricao,
		Status:        s.Status,
		Categoria:     Classificar(s.Tipo, s.Chave, s.Descricao),
		MediumDeLinha: s.MediumDeLinhaNome,
		PessoaID:      s.PessoaID,
		Pessoa:        s.PessoaNome,
		NomeExibicao:  NomeExibicao(s.PessoaNome, s.MediumDeLinhaNome),
	}
}

// consistente verifica Preenchida ⇔ pessoa definida.
func consistente(status Status, pessoa *int64) bool {
	return (status == StatusPreenchida) == (pessoa != nil)
}
