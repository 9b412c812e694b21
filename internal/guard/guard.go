// Package guard keeps a workflow from running more than one cycle at a time.
package guard

import "sync"

// Guard holds one in-flight flag per workflow. The zero value is ready to
// use and independent of every other Guard.
type Guard struct {
	mu      sync.Mutex
	running map[string]bool
}

// New returns an empty Guard.
func New() *Guard {
	return &Guard{running: make(map[string]bool)}
}

// TryEnter marks workflow as running. It returns false when a cycle for
// workflow is already in flight; the caller must then return without doing
// any work.
func (g *Guard) TryEnter(workflow string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]bool)
	}
	if g.running[workflow] {
		return false
	}
	g.running[workflow] = true
	return true
}

// Exit clears the flag for workflow. Call it with defer right after a
// successful TryEnter.
func (g *Guard) Exit(workflow string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, workflow)
}

// Running reports whether a cycle for workflow is in flight.
func (g *Guard) Running(workflow string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running[workflow]
}
