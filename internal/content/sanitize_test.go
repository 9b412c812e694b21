package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sanitizeCorpus = []string{
	"",
	"   ",
	"Texto limpo sem marcadores.",
	`<!-- ngIf: x --> texto real <input type="radio">`,
	`<!-- a <!-- b --> c -->`,
	"{{{{a}}}} depois",
	`<span ng-if="a" data-ng-class='b'>conteúdo</span>`,
	`<p _ngcontent-xyz-c1="" class="ng-scope ng-binding">Qual é a capital?</p>`,
	"linha um\n\n\n\nlinha dois \t  com   espaços",
	`Enunciado <div class="enun`,
	`termina com atributo title="aberto`,
	"<label><input type=\"checkbox\"> Certo</label>",
	"Cafe\u0301 com acento decomposto",
	"<select ng-model=\"m\"><option>A</option></select> {{ m }}",
	`Observe a figura <img ng-src="{{q.imagem}}" src="{{q.imagem}}"> e responda.`,
	`<img alt="figura" class="ng-scope">`,
}

// untouchedCorpus is legitimate question text that Sanitize must return
// unchanged.
var untouchedCorpus = []string{
	"Texto limpo sem marcadores.",
	"Sabendo que x<y e z = 3, determine o valor de x + y + z.",
	"Se a<b e b<c, então a<c.",
	"Resolva 2x + 3 = 7 e indique o valor de x.",
	"Calcule f(x) = x² para 0 < x <= 5.",
	"Para n>0, vale a<n=b quando b = 2.",
	`Veja o atributo href="pagina.html`,
	`O conjunto {a, b} contém o elemento a.`,
	"Contato: prova@exemplo.com.br",
	`Observe a figura <img src="https://cdn.example.com/q1.png"> e responda.`,
	`<img src="/img/grafico.png" alt="gráfico">`,
	"<p>Parágrafo com <strong>ênfase</strong> e H<sub>2</sub>O.</p>",
	"Art. 5º, inciso XI: a casa é asilo inviolável do indivíduo.",
}

func TestSanitize_CommentAndRadioInput(t *testing.T) {
	t.Parallel()

	res := Sanitize(`<!-- ngIf: x --> texto real <input type="radio">`)
	assert.Equal(t, "texto real", res.Cleaned)
	assert.True(t, res.Modified)
	assert.Equal(t, []Category{CategoryTemplateComment, CategoryFormElement}, res.Removed)
	assert.Empty(t, Detect(res.Cleaned))
}

func TestSanitize_Idempotent(t *testing.T) {
	t.Parallel()

	for _, in := range sanitizeCorpus {
		first := Sanitize(in).Cleaned
		second := Sanitize(first)
		assert.Equal(t, first, second.Cleaned, "input %q", in)
		assert.False(t, second.Modified, "input %q", in)
		assert.Empty(t, second.Removed, "input %q", in)
	}
}

func TestSanitize_LegitimateContentUntouched(t *testing.T) {
	t.Parallel()

	for _, in := range untouchedCorpus {
		res := Sanitize(in)
		assert.Equal(t, in, res.Cleaned, "input %q", in)
		assert.False(t, res.Modified, "input %q", in)
		assert.Empty(t, res.Removed, "input %q", in)
		assert.Empty(t, Detect(in), "input %q", in)
	}
}

func TestSanitize_CleanOutputHasNoMarkers(t *testing.T) {
	t.Parallel()

	for _, in := range sanitizeCorpus {
		assert.Empty(t, Detect(Sanitize(in).Cleaned), "input %q", in)
	}
}

func TestSanitize_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		removed []Category
	}{
		{"clean text untouched", "Qual é a capital do Brasil?", "Qual é a capital do Brasil?", nil},
		{"directive attributes stripped", `<span ng-if="a">Brasília</span>`, "<span>Brasília</span>", []Category{CategoryTemplateDirective}},
		{"binding collapsed", "Valor: {{ v }} reais", "Valor: reais", []Category{CategoryBindingExpression}},
		{"nested comments", `<!-- a <!-- b --> c -->fim`, "c -->fim", []Category{CategoryTemplateComment}},
		{"nested bindings", "{{{{a}}}} depois", "depois", []Category{CategoryBindingExpression}},
		{"truncated tag removed", `Enunciado <div class="enun`, "Enunciado", []Category{CategoryTruncatedAttribute}},
		{"truncated tag after attributes", `Texto <span id="a" hidden title='t' class="x`, "Texto", []Category{CategoryTruncatedAttribute}},
		{"inequality kept", "Sabendo que x<y e z = 3, determine x.", "Sabendo que x<y e z = 3, determine x.", nil},
		{"attribute text without a tag kept", `Veja href="pagina.html`, `Veja href="pagina.html`, nil},
		{
			"hollow image removed",
			`Observe a figura <img ng-src="{{q.imagem}}" src="{{q.imagem}}"> e responda.`,
			"Observe a figura e responda.",
			[]Category{CategoryTemplateDirective, CategoryBindingExpression, CategoryTruncatedAttribute},
		},
		{"image without source removed", `Figura: <img alt="mapa"> fim`, "Figura: fim", []Category{CategoryTruncatedAttribute}},
		{"whitespace collapsed", "a  \t b\n\n\n\nc", "a b\n\nc", nil},
		{"nfc normalized", "Cafe\u0301", "Caf\u00e9", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Sanitize(tt.input)
			assert.Equal(t, tt.want, res.Cleaned)
			assert.Equal(t, tt.removed, res.Removed)
			assert.Equal(t, tt.input != tt.want, res.Modified)
		})
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	t.Parallel()

	res := Sanitize("")
	require.Empty(t, res.Cleaned)
	assert.False(t, res.Modified)
	assert.Nil(t, res.Removed)
}
