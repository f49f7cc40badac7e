package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"UNIVERSIDADE FEDERAL DO PARANA", "Universidade Federal do Parana"},
		{"JOSE DA SILVA DOS SANTOS", "Jose da Silva dos Santos"},
		{"CANCEROLOGIA/CANCEROLOGIA PEDIÁTRICA", "Cancerologia/Cancerologia Pediátrica"},
		{"DE CASTRO", "De Castro"}, // first word is always capitalized
		{"", ""},
		{"   ", "   "},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TitleCase(tt.in), "input %q", tt.in)
	}
}

func TestParseSpecialties(t *testing.T) {
	got := ParseSpecialties("&CARDIOLOGIA - RQE Nº: 12345&PEDIATRIA - RQE Nº: 67890")
	assert.Equal(t, []ParsedSpecialty{
		{Name: "Cardiologia", Code: "CARDIOLOGIA", RQE: "12345"},
		{Name: "Pediatria", Code: "PEDIATRIA", RQE: "67890"},
	}, got)
}

func TestParseSpecialtiesDropsPracticeArea(t *testing.T) {
	got := ParseSpecialties("&CIRURGIA GERAL - RQE Nº: 123 (Cirurgia do Trauma)")
	assert.Equal(t, []ParsedSpecialty{
		{Name: "Cirurgia Geral", Code: "CIRURGIA GERAL", RQE: "123"},
	}, got)
}

func TestParseSpecialtiesWithoutRQE(t *testing.T) {
	got := ParseSpecialties("&MEDICINA DE FAMILIA E COMUNIDADE")
	assert.Equal(t, []ParsedSpecialty{
		{Name: "Medicina de Familia e Comunidade", Code: "MEDICINA DE FAMILIA E COMUNIDADE"},
	}, got)
}

func TestParseSpecialtiesEmpty(t *testing.T) {
	assert.Nil(t, ParseSpecialties(""))
	assert.Nil(t, ParseSpecialties("  "))
	assert.Nil(t, ParseSpecialties("&"))
}
