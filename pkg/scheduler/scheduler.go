// Package scheduler runs named phases in dependency order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/emirpasic/gods/maps/linkedhashmap"
)

var (
	ErrDuplicatePhase = errors.New("duplicate phase")
	ErrUnknownPhase   = errors.New("unknown phase")
	ErrCycle          = errors.New("phase dependency cycle")
)

type Phase struct {
	Name  string
	After []string
	Run   func(ctx context.Context) error
}

// PhaseError ties a failure to the phase that raised it.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %v: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// FailedPhase returns the name of the phase err was raised in, if any.
func FailedPhase(err error) string {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}

type Scheduler struct {
	phases *linkedhashmap.Map
}

func New() *Scheduler {
	return &Scheduler{
		phases: linkedhashmap.New(),
	}
}

func (s *Scheduler) Add(p Phase) error {
	if p.Name == "" {
		return fmt.Errorf("tried to add unnamed phase")
	}
	if _, ok := s.phases.Get(p.Name); ok {
		return fmt.Errorf("%w: %v", ErrDuplicatePhase, p.Name)
	}
	s.phases.Put(p.Name, p)
	return nil
}

func (s *Scheduler) Get(name string) (Phase, bool) {
	v, ok := s.phases.Get(name)
	if !ok {
		return Phase{}, false
	}
	return v.(Phase), true
}

func (s *Scheduler) list() []Phase {
	result := make([]Phase, 0, s.phases.Size())
	it := s.phases.Iterator()
	for it.Next() {
		result = append(result, it.Value().(Phase))
	}
	return result
}

// Order returns the phases topologically sorted. Among phases whose
// dependencies are met, the one added first runs first.
func (s *Scheduler) Order() ([]Phase, error) {
	pending := s.list()
	for _, p := range pending {
		for _, dep := range p.After {
			if _, ok := s.phases.Get(dep); !ok {
				return nil, fmt.Errorf("%w: %v depends on %v", ErrUnknownPhase, p.Name, dep)
			}
		}
	}
	done := make(map[string]bool, len(pending))
	ordered := make([]Phase, 0, len(pending))
	for len(pending) > 0 {
		next := -1
		for i, p := range pending {
			if ready(p, done) {
				next = i
				break
			}
		}
		if next < 0 {
			names := make([]string, 0, len(pending))
			for _, p := range pending {
				names = append(names, p.Name)
			}
			return nil, fmt.Errorf("%w between %v", ErrCycle, strings.Join(names, ", "))
		}
		p := pending[next]
		done[p.Name] = true
		ordered = append(ordered, p)
		pending = append(pending[:next], pending[next+1:]...)
	}
	return ordered, nil
}

func ready(p Phase, done map[string]bool) bool {
	for _, dep := range p.After {
		if !done[dep] {
			return false
		}
	}
	return true
}

// Run executes every phase in order and stops at the first failure. It
// returns the names of the phases that completed.
func (s *Scheduler) Run(ctx context.Context) ([]string, error) {
	order, err := s.Order()
	if err != nil {
		return nil, err
	}
	var completed []string
	for _, p := range order {
		if err := ctx.Err(); err != nil {
			return completed, &PhaseError{Phase: p.Name, Err: err}
		}
		log.Debug("running phase", "phase", p.Name)
		if p.Run != nil {
			if err := p.Run(ctx); err != nil {
				return completed, &PhaseError{Phase: p.Name, Err: err}
			}
		}
		completed = append(completed, p.Name)
	}
	return completed, nil
}
