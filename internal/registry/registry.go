// Package registry implements the process-scoped name→constructor tables
// (§4.1) that back platform, compiler, linker and toolchain selection.
package registry

import (
	"sync"

	"golang.org/x/xerrors"
)

// NotFound is returned by Get and GetByType when no entry satisfies the
// lookup.
type NotFound struct {
	Name string
}

func (e *NotFound) Error() string {
	if e.Name == "" {
		return "registry: no matching entry"
	}
	return xerrors.Errorf("registry: %q not found", e.Name).Error()
}

// DuplicateName is returned by Register when name is already taken.
type DuplicateName struct {
	Name string
}

func (e *DuplicateName) Error() string {
	return xerrors.Errorf("registry: duplicate name %q", e.Name).Error()
}

// Registry is a name→constructor table for one kind of pluggable component
// (platform, compiler, linker or toolchain). It is a one-shot bootstrap
// structure: Register before any build starts, then treat it as read-only
// (§5, "Registries: initialized once before any build; frozen thereafter;
// readable by any thread").
type Registry[T any] struct {
	mu      sync.RWMutex
	byName  map[string]T
	frozen  bool
	ordered []string // preserves registration order for Enumerate
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{byName: make(map[string]T)}
}

// Register adds name→value to the registry. It fails with *DuplicateName on
// collision, and is a programmer error (panic) if called after Freeze.
func (r *Registry[T]) Register(name string, value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("registry: Register called after Freeze")
	}
	if _, ok := r.byName[name]; ok {
		return &DuplicateName{Name: name}
	}
	r.byName[name] = value
	r.ordered = append(r.ordered, name)
	return nil
}

// Freeze marks the registry read-only. Safe to call multiple times.
func (r *Registry[T]) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get returns the entry registered under name.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byName[name]
	if !ok {
		return v, &NotFound{Name: name}
	}
	return v, nil
}

// GetByType returns the single entry for which match returns true. It fails
// with *NotFound if zero or more than one entry matches — ambiguity is
// treated the same as absence, since callers use GetByType to mean "the one
// instance of this kind", not "the first one".
func (r *Registry[T]) GetByType(match func(T) bool) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		found T
		n     int
	)
	for _, name := range r.ordered {
		v := r.byName[name]
		if match(v) {
			found = v
			n++
		}
	}
	if n != 1 {
		return found, &NotFound{}
	}
	return found, nil
}

// Enumerate returns all registered values in registration order.
func (r *Registry[T]) Enumerate() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.ordered))
	for _, name := range r.ordered {
		out = append(out, r.byName[name])
	}
	return out
}

// Clear empties the registry and un-freezes it. Intended for tests only —
// "Registering the same name twice fails; re-registering after clear
// succeeds" (§8).
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]T)
	r.ordered = nil
	r.frozen = false
}
