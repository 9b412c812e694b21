package inference

import (
	"context"
	"sync"
)

// Call records one request seen by Fake.
type Call struct {
	Workflow string
	System   string
	Payload  string
}

type reply struct {
	text  string
	err   error
	panic any
}

// Fake is a scripted Inferrer for tests and dry runs. Replies are consumed
// in order; once the script is exhausted the fallback reply is returned.
type Fake struct {
	mu       sync.Mutex
	script   []reply
	fallback reply
	calls    []Call
	hook     func(Call)
}

// NewFake returns a Fake whose fallback reply is text.
func NewFake(text string) *Fake {
	return &Fake{fallback: reply{text: text}}
}

// Respond queues a text reply.
func (f *Fake) Respond(text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, reply{text: text})
	return f
}

// Fail queues an error reply.
func (f *Fake) Fail(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, reply{err: err})
	return f
}

// Panic queues a reply that panics with v.
func (f *Fake) Panic(v any) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, reply{panic: v})
	return f
}

// OnCall registers a hook invoked at the start of every call, outside the
// Fake's lock.
func (f *Fake) OnCall(hook func(Call)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
	return f
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Infer returns the next scripted reply.
func (f *Fake) Infer(ctx context.Context, system, payload string) (string, error) {
	call := Call{Workflow: WorkflowFrom(ctx), System: system, Payload: payload}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	r := f.fallback
	if len(f.script) > 0 {
		r = f.script[0]
		f.script = f.script[1:]
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if r.panic != nil {
		panic(r.panic)
	}
	return r.text, r.err
}
