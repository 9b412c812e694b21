package guard

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryEnter_Exclusive(t *testing.T) {
	g := New()

	assert.True(t, g.TryEnter("answer_extraction"))
	assert.True(t, g.Running("answer_extraction"))
	assert.False(t, g.TryEnter("answer_extraction"))

	// Other workflows are unaffected.
	assert.True(t, g.TryEnter("full_review"))

	g.Exit("answer_extraction")
	assert.False(t, g.Running("answer_extraction"))
	assert.True(t, g.TryEnter("answer_extraction"))
}

func TestZeroValue(t *testing.T) {
	var g Guard
	assert.False(t, g.Running("x"))
	assert.True(t, g.TryEnter("x"))
	assert.False(t, g.TryEnter("x"))
	g.Exit("x")
	assert.True(t, g.TryEnter("x"))
}

func TestExitWithoutEnter(t *testing.T) {
	g := New()
	g.Exit("never-entered")
	assert.True(t, g.TryEnter("never-entered"))
}

func TestIndependentInstances(t *testing.T) {
	a, b := New(), New()
	assert.True(t, a.TryEnter("w"))
	assert.True(t, b.TryEnter("w"))
}

func TestTryEnter_Concurrent(t *testing.T) {
	g := New()
	var entered atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryEnter("w") {
				entered.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), entered.Load())
}
