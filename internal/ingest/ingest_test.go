package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/question-bank/internal/content"
	"github.com/sells-group/question-bank/internal/model"
	"github.com/sells-group/question-bank/internal/store"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("q-%d", n)
	}
}

func validRecord(id string) model.RawRecord {
	return model.RawRecord{
		ExternalID: id,
		Subject:    "Direito Constitucional",
		Source:     "CESPE",
		Statement:  "Compete ao STF processar e julgar originariamente a ação direta de inconstitucionalidade.",
		Options: []model.Option{
			{Label: "C", Text: "Certo"},
			{Label: "E", Text: "Errado"},
		},
		AnswerKey:  "c",
		Commentary: "Art. 102, I, a, da Constituição.",
	}
}

type failingInsertStore struct {
	*store.MemoryStore
	failFor string
}

func (s *failingInsertStore) InsertQuestion(ctx context.Context, q *model.Question) (bool, error) {
	if q.ExternalID == s.failFor {
		return false, errors.New("connection reset")
	}
	return s.MemoryStore.InsertQuestion(ctx, q)
}

func TestIngest_RejectsShortStatementAndSingleOption(t *testing.T) {
	st := store.NewMemory()
	in := New(st)

	res, err := in.Ingest(context.Background(), []model.RawRecord{{
		ExternalID: "ext-a",
		Statement:  "curto",
		Options:    []model.Option{{Label: "A", Text: "única"}},
	}})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, "ext-a", res.Rejections[0].ExternalID)

	reasons := res.Rejections[0].Reasons
	assert.True(t, containsPrefix(reasons, "statement too short"), reasons)
	assert.True(t, containsPrefix(reasons, "insufficient options"), reasons)

	exists, err := st.QuestionExists(context.Background(), "ext-a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func TestIngest_PersistsSanitizedActiveRecord(t *testing.T) {
	st := store.NewMemory()
	in := New(st, WithIDGenerator(sequentialIDs()))

	raw := validRecord("ext-b")
	raw.Statement = `<!-- ngIf: x --> texto real <input type="radio">`

	res, err := in.Ingest(context.Background(), []model.RawRecord{raw})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Positive(t, res.Warnings)

	q, err := st.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, "texto real", q.Statement)
	assert.True(t, content.IsClean(q.Statement))
	assert.True(t, q.Active)
	assert.Equal(t, "ext-b", q.ExternalID)
	require.NotNil(t, q.AnswerKey)
	assert.Equal(t, "C", *q.AnswerKey)
	require.NotNil(t, q.Subject)
	assert.Equal(t, "Direito Constitucional", *q.Subject)
}

func TestIngest_DuplicateIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	in := New(st, WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	first, err := in.Ingest(ctx, []model.RawRecord{validRecord("ext-1"), validRecord("ext-2")})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	changed := validRecord("ext-1")
	changed.Statement = "Enunciado reescrito por uma nova raspagem da fonte."
	second, err := in.Ingest(ctx, []model.RawRecord{changed, validRecord("ext-2")})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Skipped)

	q, err := st.GetQuestion(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, validRecord("ext-1").Statement, q.Statement)
}

func TestIngest_DuplicateWithinBatch(t *testing.T) {
	in := New(store.NewMemory())

	res, err := in.Ingest(context.Background(), []model.RawRecord{validRecord("ext-1"), validRecord("ext-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
}

func TestIngest_MissingExternalIDRejected(t *testing.T) {
	in := New(store.NewMemory())

	res, err := in.Ingest(context.Background(), []model.RawRecord{validRecord("  ")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, []string{"missing external id"}, res.Rejections[0].Reasons)
}

func TestIngest_StoreErrorDoesNotAbortBatch(t *testing.T) {
	st := &failingInsertStore{MemoryStore: store.NewMemory(), failFor: "ext-2"}
	in := New(st)

	res, err := in.Ingest(context.Background(), []model.RawRecord{
		validRecord("ext-1"), validRecord("ext-2"), validRecord("ext-3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "ext-2", res.Failures[0].ExternalID)
	assert.Contains(t, res.Failures[0].Error, "connection reset")
	assert.Equal(t, 3, res.Total())
}

func TestIngest_ResidualCorruptionRejected(t *testing.T) {
	in := New(store.NewMemory())

	raw := validRecord("ext-img")
	raw.Options[1].Text = "imagem"

	res, err := in.Ingest(context.Background(), []model.RawRecord{raw})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.True(t, containsPrefix(res.Rejections[0].Reasons, "option E is a placeholder"), res.Rejections[0].Reasons)
}

func TestIngest_UnknownAnswerKeyLeftUnset(t *testing.T) {
	st := store.NewMemory()
	in := New(st, WithIDGenerator(sequentialIDs()))

	raw := validRecord("ext-1")
	raw.AnswerKey = "Z"

	res, err := in.Ingest(context.Background(), []model.RawRecord{raw})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	q, err := st.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Nil(t, q.AnswerKey)
}

func TestIngest_CollectsImageReferences(t *testing.T) {
	st := store.NewMemory()
	in := New(st, WithIDGenerator(sequentialIDs()))

	raw := validRecord("ext-1")
	raw.Images = []string{" https://cdn.example.com/mapa.png ", ""}
	raw.Statement = `Observe o mapa <img src="https://cdn.example.com/mapa.png"> e o gráfico <img src="/img/grafico.png"> abaixo.`

	_, err := in.Ingest(context.Background(), []model.RawRecord{raw})
	require.NoError(t, err)

	q, err := st.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/mapa.png", "/img/grafico.png"}, q.Images)
}

func TestIngest_DropsCorruptedImageReferences(t *testing.T) {
	st := store.NewMemory()
	in := New(st, WithIDGenerator(sequentialIDs()))

	raw := validRecord("ext-1")
	raw.Statement = `Observe a figura <img ng-src="{{q.imagem}}" src="{{q.imagem}}"> e responda ao item.`
	raw.Images = []string{"<!-- ngIf: img -->", "{{q.imagem}}", "https://cdn.example.com/mapa.png"}

	res, err := in.Ingest(context.Background(), []model.RawRecord{raw})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	q, err := st.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.True(t, q.Active)
	assert.Equal(t, "Observe a figura e responda ao item.", q.Statement)
	assert.True(t, content.IsClean(q.Statement))
	assert.Equal(t, []string{"https://cdn.example.com/mapa.png"}, q.Images)
	for _, img := range q.Images {
		assert.Empty(t, content.Detect(img), "image %q", img)
	}
}

func TestIngest_KeepsInequalityStatement(t *testing.T) {
	st := store.NewMemory()
	in := New(st, WithIDGenerator(sequentialIDs()))

	raw := validRecord("ext-1")
	raw.Statement = "Sabendo que x<y e z = 3, determine o valor de x + y + z."

	res, err := in.Ingest(context.Background(), []model.RawRecord{raw})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	q, err := st.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, raw.Statement, q.Statement)
}

func TestIngest_ContextCancelled(t *testing.T) {
	in := New(store.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := in.Ingest(ctx, []model.RawRecord{validRecord("ext-1")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Total())
}

func TestIngest_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	in := New(store.NewMemory(), WithMetrics(reg))

	_, err := in.Ingest(context.Background(), []model.RawRecord{
		validRecord("ext-1"), validRecord("ext-1"), {ExternalID: "bad"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(in.records.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(in.records.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(in.records.WithLabelValues("rejected")))
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := &validationError{reasons: []string{"statement too short (5 < 10 characters)"}}
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "statement too short")
	assert.Equal(t, []string{"boom"}, reasons(errors.New("boom")))
}
