package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripAccents(t *testing.T) {
	assert.Equal(t, "Acao Sao Joao", StripAccents("Ação São João"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "ola quero saber sobre o residencial alfa", Fold("  Olá, quero saber sobre o Residencial   ALFA!! "))
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		want   bool
	}{
		{"Olá, quero saber sobre o Residencial Alfa", "Residencial Alfa", true},
		{"vocês tem unidades no RESIDENCIAL ALFA?", "residencial alfa", true},
		{"Edifício Jardins", "edificio jardins", true},
		{"quero o Residencial Alfabeto", "Residencial Alfa", false},
		{"nada a ver", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsPhrase(tt.text, tt.phrase), "%q in %q", tt.phrase, tt.text)
	}
}
