package recovery

import (
	"context"
	"fmt"
	"sync"
)

// Strategy decides how the parser reacts to malformed structure.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location identifies where a problem was found.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string // "xref", "object", "stream", "content"
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// StrictStrategy fails on the first problem.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (*StrictStrategy) OnError(context.Context, error, Location) Action { return ActionFail }

// LenientStrategy rebuilds broken cross-reference data and skips objects
// that cannot be read. Every problem is recorded.
type LenientStrategy struct {
	mu     sync.Mutex
	errors []error
}

func NewLenientStrategy() *LenientStrategy { return &LenientStrategy{} }

func (s *LenientStrategy) OnError(_ context.Context, err error, loc Location) Action {
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s] offset %d obj %d: %w", loc.Component, loc.ByteOffset, loc.ObjectNum, err))
	s.mu.Unlock()
	switch loc.Component {
	case "xref":
		return ActionFix
	case "object", "stream":
		return ActionSkip
	}
	return ActionWarn
}

// Errors returns the problems seen so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.errors))
	copy(out, s.errors)
	return out
}
