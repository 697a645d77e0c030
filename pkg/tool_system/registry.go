package toolsystem

import (
	"fmt"
)

type Op string

const (
	OpAdd     Op = "ADD"
	OpRemove  Op = "REMOVE"
	OpReplace Op = "REPLACE"
)

// Set is an ordered, name-keyed collection of function definitions.
// It is not safe for concurrent use; the owner serializes access.
type Set struct {
	order []string
	defs  map[string]FunctionDef
}

func NewSet(defs []FunctionDef) *Set {
	s := &Set{defs: make(map[string]FunctionDef, len(defs))}
	for _, d := range defs {
		s.Add(d)
	}
	return s
}

// Add inserts d, replacing an existing definition with the same name in place.
func (s *Set) Add(d FunctionDef) {
	if _, exists := s.defs[d.Name]; !exists {
		s.order = append(s.order, d.Name)
	}
	s.defs[d.Name] = d
}

func (s *Set) Remove(name string) {
	if _, exists := s.defs[name]; !exists {
		return
	}
	delete(s.defs, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Set) Get(name string) (FunctionDef, bool) {
	d, ok := s.defs[name]
	return d, ok
}

func (s *Set) Len() int {
	return len(s.order)
}

// List returns a copy in insertion order.
func (s *Set) List() []FunctionDef {
	out := make([]FunctionDef, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.defs[n])
	}
	return out
}

// Apply returns current updated by op. current is not modified.
func Apply(current []FunctionDef, op Op, defs []FunctionDef) ([]FunctionDef, error) {
	switch op {
	case OpReplace:
		return NewSet(defs).List(), nil
	case OpAdd:
		s := NewSet(current)
		for _, d := range defs {
			s.Add(d)
		}
		return s.List(), nil
	case OpRemove:
		s := NewSet(current)
		for _, d := range defs {
			s.Remove(d.Name)
		}
		return s.List(), nil
	}
	return nil, fmt.Errorf("unknown function_calling_op %q", op)
}
