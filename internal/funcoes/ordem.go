package funcoes

import (
	"sort"
	"strings"
)

// frases de prioridade da organização, em ordem de exibição.
var prioridadeOrganizacao = []string{"portao", "distribuir senha", "lojinha", "chamar senha"}

const maeBruna = "mae bruna"

// OrdenarCambones ordena pelo nome do médium de linha; Mãe Bruna vem primeiro.
func OrdenarCambones(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	chave := func(it Item) string {
		k := Normalizar(it.MediumDeLinha)
		if k == maeBruna {
			return ""
		}
		return k
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := chave(out[i]), chave(out[j])
		if ki != kj {
			return ki < kj
		}
		return out[i].MediumDeLinha < out[j].MediumDeLinha
	})
	return out
}

// OrdenarOrganizacao agrupa pelas frases de prioridade e mantém a ordem de entrada no resto.
func OrdenarOrganizacao(items []Item) []Item {
	grupos := make([][]Item, len(prioridadeOrganizacao)+1)
	for _, it := range items {
		desc := Normalizar(it.Descricao)
		idx := len(prioridadeOrganizacao)
		for i, frase := range prioridadeOrganizacao {
			if strings.Contains(desc, frase) {
				idx = i
				break
			}
		}
		grupos[idx] = append(grupos[idx], it)
	}

	out := make([]Item, 0, len(items))
	for _, g := range grupos {
		out = append(out, g...)
	}
	return out
}

// OrdenarLimpeza ordena por posição e preenche o rótulo de exibição.
func OrdenarLimpeza(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Rotulo = rotuloLimpeza(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Posicao < out[j].Posicao
	})
	return out
}

func rotuloLimpeza(it Item) string {
	if strings.Contains(Normalizar(it.Descricao), "limp") || strings.Contains(Normalizar(it.Tipo), "limp") {
		return "Limpeza"
	}
	if it.Descricao != "" {
		return it.Descricao
	}
	return it.Tipo
}

// MontarPainel classifica e ordena os itens de uma gira.
func MontarPainel(g Gira, items []Item) Painel {
	p := Painel{
		Gira:        g,
		Cambones:    []Item{},
		Organizacao: []Item{},
		Limpeza:     []Item{},
	}
	for _, it := range items {
		switch it.Categoria {
		case Cambones:
			p.Cambones = append(p.Cambones, it)
		case Limpeza:
			p.Limpeza = append(p.Limpeza, it)
		default:
			p.Organizacao = append(p.Organizacao, it)
		}
	}
	p.Cambones = OrdenarCambones(p.Cambones)
	p.Organizacao = OrdenarOrganizacao(p.Organizacao)
	p.Limpeza = OrdenarLimpeza(p.Limpeza)
	return p
}
