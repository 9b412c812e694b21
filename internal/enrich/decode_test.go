package enrich

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Strict(t *testing.T) {
	r, err := Decode[answerReply](`{"gabarito":"B","confianca":0.95}`)
	require.NoError(t, err)
	assert.Equal(t, "B", r.Gabarito)
	require.NotNil(t, r.Confianca)
	assert.InDelta(t, 0.95, float64(*r.Confianca), 1e-9)
}

func TestDecode_Fenced(t *testing.T) {
	r, err := Decode[answerReply]("```json\n{\"gabarito\":\"B\",\"confianca\":0.95}\n```")
	require.NoError(t, err)
	assert.Equal(t, "B", r.Gabarito)
}

func TestDecode_ProseAroundObject(t *testing.T) {
	raw := "Analisando o comentário, o gabarito é B.\n{\"gabarito\": \"B\", \"confianca\": 0.8}\nEspero ter ajudado {sic}."
	r, err := Decode[answerReply](raw)
	require.NoError(t, err)
	assert.Equal(t, "B", r.Gabarito)
}

func TestDecode_BracesInsideStrings(t *testing.T) {
	raw := `Resultado: {"texto_formatado":"<p>use {chaves} e \"aspas\" }</p>","confianca":0.9} fim`
	r, err := Decode[formatReply](raw)
	require.NoError(t, err)
	assert.Equal(t, `<p>use {chaves} e "aspas" }</p>`, r.TextoFormatado)
}

func TestDecode_NestedObject(t *testing.T) {
	type nested struct {
		A struct {
			B int `json:"b"`
		} `json:"a"`
	}
	r, err := Decode[nested]("x {\"a\": {\"b\": 7}} y")
	require.NoError(t, err)
	assert.Equal(t, 7, r.A.B)
}

func TestDecode_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"no object", "o gabarito é a letra B"},
		{"truncated", `{"gabarito":"B","confianca":0.`},
		{"unbalanced fence", "```json\n{\"gabarito\": \"B\"\n```"},
		{"wrong types", `{"gabarito": 2, "confianca": "alta"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[answerReply](tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrResponseParse)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestDecode_ScanIsBounded(t *testing.T) {
	raw := "{" + strings.Repeat(`"k":`, maxExtractScan/4+10) + "1}"
	_, err := Decode[map[string]any](raw)
	assert.ErrorIs(t, err, ErrResponseParse)
}

func TestParseError_SampleIsShort(t *testing.T) {
	_, err := Decode[answerReply](strings.Repeat("x", 1000))
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 400)
}

func TestConfidence_Unmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`{"gabarito":"A","confianca":0.75}`, 0.75},
		{`{"gabarito":"A","confianca":"0.6"}`, 0.6},
		{`{"gabarito":"A","confianca":"0,9"}`, 0.9},
		{`{"gabarito":"A","confianca":85}`, 0.85},
		{`{"gabarito":"A","confianca":"40%"}`, 0.4},
		{`{"gabarito":"A","confianca":1}`, 1},
	}
	for _, tt := range tests {
		r, err := Decode[answerReply](tt.raw)
		require.NoError(t, err, tt.raw)
		require.NotNil(t, r.Confianca)
		assert.InDelta(t, tt.want, float64(*r.Confianca), 1e-9, tt.raw)
	}

	r, err := Decode[answerReply](`{"gabarito":"A","confianca":null}`)
	require.NoError(t, err)
	assert.Nil(t, r.Confianca)
}
