package funcoes

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template descreve as funções semeadas em toda gira nova.
type Template struct {
	Funcoes []TemplateFuncao `yaml:"funcoes"`
}

type TemplateFuncao struct {
	Chave     string `yaml:"chave"`
	Tipo      string `yaml:"tipo"`
	Posicao   string `yaml:"posicao"`
	Descricao string `yaml:"descricao"`
	// Quantidade > 1 replica a entrada com chaves numeradas (chave-1, chave-2...).
	Quantidade int `yaml:"quantidade"`
}

// CarregarTemplate lê e valida o arquivo YAML.
func CarregarTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("template de gira: %w", err)
	}
	return ParseTemplate(data)
}

func ParseTemplate(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("template de gira: %w", err)
	}
	if len(t.Funcoes) == 0 {
		return Template{}, fmt.Errorf("%w: template sem funções", ErrInvalid)
	}

	vistas := make(map[string]struct{})
	for _, f := range t.Expandir() {
		if f.Chave == "" || f.Tipo == "" {
			return Template{}, fmt.Errorf("%w: função do template sem chave ou tipo", ErrInvalid)
		}
		if _, ok := vistas[f.Chave]; ok {
			return Template{}, fmt.Errorf("%w: chave repetida %q", ErrInvalid, f.Chave)
		}
		vistas[f.Chave] = struct{}{}
	}
	return t, nil
}

// Expandir gera as funções (ainda sem gira) na ordem do arquivo.
func (t Template) Expandir() []Funcao {
	var out []Funcao
	for _, tf := range t.Funcoes {
		base := Funcao{
			Chave:     strings.TrimSpace(tf.Chave),
			Tipo:      strings.TrimSpace(tf.Tipo),
			Posicao:   strings.TrimSpace(tf.Posicao),
			Descricao: strings.TrimSpace(tf.Descricao),
			Status:    StatusVaga,
		}
		if tf.Quantidade <= 1 {
			out = append(out, base)
			continue
		}
		for i := 1; i <= tf.Quantidade; i++ {
			f := base
			f.Chave = fmt.Sprintf("%s-%d", base.Chave, i)
			if f.Posicao == "" {
				f.Posicao = fmt.Sprintf("%02d", i)
			}
			out = append(out, f)
		}
	}
	return out
}
