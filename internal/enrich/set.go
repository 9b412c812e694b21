package enrich

import (
	"github.com/sells-group/question-bank/internal/model"
)

// Set holds the runners of the enabled workflows in scheduling order.
type Set struct {
	order   []model.TaskKind
	runners map[model.TaskKind]*Runner
}

// NewSet collects runners. A later runner for the same kind replaces an
// earlier one.
func NewSet(runners ...*Runner) *Set {
	s := &Set{runners: make(map[model.TaskKind]*Runner, len(runners))}
	for _, r := range runners {
		if _, ok := s.runners[r.Kind()]; !ok {
			s.order = append(s.order, r.Kind())
		}
		s.runners[r.Kind()] = r
	}
	return s
}

// Get returns the runner for kind.
func (s *Set) Get(kind model.TaskKind) (*Runner, bool) {
	r, ok := s.runners[kind]
	return r, ok
}

// Runners returns the runners in order.
func (s *Set) Runners() []*Runner {
	out := make([]*Runner, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.runners[k])
	}
	return out
}

// Statuses returns a snapshot of every runner.
func (s *Set) Statuses() []Status {
	out := make([]Status, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.runners[k].Status())
	}
	return out
}
