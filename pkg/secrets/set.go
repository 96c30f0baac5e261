package secrets

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
)

// Set holds specs keyed by their unique name, iterated in name order.
type Set struct {
	specs *treemap.Map
}

func NewSet() *Set {
	return &Set{
		specs: treemap.NewWithStringComparator(),
	}
}

// NewSetFrom builds a set and rejects duplicate names.
func NewSetFrom(specs []SecretSpec) (*Set, error) {
	s := NewSet()
	for _, v := range specs {
		if err := s.Add(v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) Add(spec SecretSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, ok := s.specs.Get(spec.Name); ok {
		return fmt.Errorf("%w: duplicate secret %v", ErrConfiguration, spec.Name)
	}
	s.specs.Put(spec.Name, spec)
	return nil
}

// Put adds or replaces spec.
func (s *Set) Put(spec SecretSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s.specs.Put(spec.Name, spec)
	return nil
}

func (s *Set) Get(name string) (SecretSpec, bool) {
	raw, ok := s.specs.Get(name)
	if !ok {
		return SecretSpec{}, false
	}
	return raw.(SecretSpec), true
}

func (s *Set) Size() int {
	return s.specs.Size()
}

func (s *Set) List() []SecretSpec {
	result := make([]SecretSpec, 0, s.specs.Size())
	for _, v := range s.specs.Values() {
		result = append(result, v.(SecretSpec))
	}
	return result
}

// Partition splits the set into root-owned and non-root-owned specs, both
// in name order.
func (s *Set) Partition() (root, nonRoot []SecretSpec) {
	for _, v := range s.List() {
		if v.IsRootOwned() {
			root = append(root, v)
		} else {
			nonRoot = append(nonRoot, v)
		}
	}
	return root, nonRoot
}
