package module

import "golang.org/x/xerrors"

// FrozenModule describes an attempt to mutate a module's attributes after
// Freeze (§4.3, "mutation is a programmer error"); the mutators panic with
// its message rather than returning it.
type FrozenModule struct {
	Module string
}

func (e *FrozenModule) Error() string {
	return xerrors.Errorf("module %q is frozen", e.Module).Error()
}

// AccessLimited is a collection with a public bucket (propagated to
// dependents) and a private bucket (local to the owning module), per §3 and
// §4.3. Duplicates within or across buckets are tolerated; Joined
// deduplicates using a caller-supplied key function, since the element type
// T need not be comparable (e.g. ModuleReference). Propagated returns the
// public bucket as stored, duplicates included.
type AccessLimited[T any] struct {
	name    string // for FrozenModule diagnostics, e.g. "includes"
	frozen  *bool
	public  []T
	private []T
}

// NewAccessLimited returns an empty collection. frozen must point at the
// owning Module's frozen flag so mutation after Freeze fails loudly.
func NewAccessLimited[T any](name string, frozen *bool) AccessLimited[T] {
	return AccessLimited[T]{name: name, frozen: frozen}
}

func (c *AccessLimited[T]) checkMutable() {
	if c.frozen != nil && *c.frozen {
		panic((&FrozenModule{Module: c.name}).Error())
	}
}

// AddPublic appends v to the public bucket.
func (c *AccessLimited[T]) AddPublic(v T) {
	c.checkMutable()
	c.public = append(c.public, v)
}

// AddPrivate appends v to the private bucket.
func (c *AccessLimited[T]) AddPrivate(v T) {
	c.checkMutable()
	c.private = append(c.private, v)
}

// RemovePublic drops every element of the public bucket matching pred.
func (c *AccessLimited[T]) RemovePublic(pred func(T) bool) {
	c.checkMutable()
	c.public = filterOut(c.public, pred)
}

// RemovePrivate drops every element of the private bucket matching pred.
func (c *AccessLimited[T]) RemovePrivate(pred func(T) bool) {
	c.checkMutable()
	c.private = filterOut(c.private, pred)
}

// Public returns a copy of the public bucket, in insertion order.
func (c *AccessLimited[T]) Public() []T { return append([]T(nil), c.public...) }

// Private returns a copy of the private bucket, in insertion order.
func (c *AccessLimited[T]) Private() []T { return append([]T(nil), c.private...) }

// Joined returns the first-seen-wins union of the public then private
// buckets (§4.3, "joined(): first-seen-wins merge, public then private").
func (c *AccessLimited[T]) Joined(key func(T) string) []T {
	return dedupe(key, c.public, c.private)
}

// Propagated returns the public bucket only — what a dependent inherits
// through this collection (§3, §4.3).
func (c *AccessLimited[T]) Propagated() []T {
	return append([]T(nil), c.public...)
}

func filterOut[T any](items []T, pred func(T) bool) []T {
	out := items[:0:0]
	for _, v := range items {
		if !pred(v) {
			out = append(out, v)
		}
	}
	return out
}

func dedupe[T any](key func(T) string, lists ...[]T) []T {
	seen := make(map[string]bool)
	var out []T
	for _, list := range lists {
		for _, v := range list {
			k := key(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}
