package funcoes

import "strings"

var palavrasOrganizacao = []string{"organ", "senha", "portao", "lojinh", "chamar"}

// Classificar decide a categoria de uma função pelos seus textos livres.
// A primeira regra que casar vence; sem casamento a função cai em Organizacao.
func Classificar(tipo, chave, descricao string) Categoria {
	campos := [3]string{Normalizar(tipo), Normalizar(chave), Normalizar(descricao)}

	if algumContem(campos, "cambone") {
		return Cambones
	}
	for _, p := range palavrasOrganizacao {
		if algumContem(campos, p) {
			return Organizacao
		}
	}
	if algumContem(campos, "limp") {
		return Limpeza
	}
	return Organizacao
}

func algumContem(campos [3]string, termo string) bool {
	for _, c := range campos {
		if strings.Contains(c, termo) {
			return true
		}
	}
	return false
}
