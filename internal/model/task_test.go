package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTaskKind(t *testing.T) {
	t.Parallel()

	for _, k := range AllKinds {
		got, err := ParseTaskKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseTaskKind("audio_generation")
	require.Error(t, err)
	assert.Equal(t, `unknown task kind "audio_generation"`, eris.Unpack(err).ErrRoot.Msg)
}

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	for _, st := range AllStatuses {
		got, err := ParseTaskStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseTaskStatus("archived")
	require.Error(t, err)
	assert.Equal(t, `unknown task status "archived"`, eris.Unpack(err).ErrRoot.Msg)
}

func TestTaskStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, TaskPending.Terminal())
	assert.False(t, TaskProcessing.Terminal())
	assert.True(t, TaskDone.Terminal())
	assert.True(t, TaskFailed.Terminal())
	assert.True(t, TaskSkipped.Terminal())
}

func TestOutcomeNextStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		outcome     Outcome
		attempts    int
		maxAttempts int
		want        TaskStatus
	}{
		{"done", Done(), 1, 3, TaskDone},
		{"skip", Skip("already formatted"), 3, 3, TaskSkipped},
		{"retry below max", RetryOrFail(errors.New("boom")), 2, 3, TaskPending},
		{"retry at max", RetryOrFail(errors.New("boom")), 3, 3, TaskFailed},
		{"retry above max", RetryOrFail(errors.New("boom")), 4, 3, TaskFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.outcome.NextStatus(tt.attempts, tt.maxAttempts))
		})
	}
}

func TestOutcomeMessage(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Done().Message())
	assert.Equal(t, "already formatted", Skip("already formatted").Message())
	assert.Equal(t, "unknown error", RetryOrFail(nil).Message())

	long := strings.Repeat("é", MaxErrorLength+20)
	msg := RetryOrFail(errors.New(long)).Message()
	assert.Len(t, []rune(msg), MaxErrorLength)
}

func TestOutcomeKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "done", OutcomeDone.String())
	assert.Equal(t, "retry_or_fail", OutcomeRetry.String())
	assert.Equal(t, "skip", OutcomeSkip.String())
}
