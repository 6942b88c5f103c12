package graph

import "github.com/yldrefruz/ebuild/internal/module"

// Propagate computes each node's Inherited view: the union of every
// directly-depended-on module's public buckets, plus — transitively —
// every module reachable through a chain of *public* dependency edges
// (§3, "Transitive public propagation", §4.6 "Propagation").
//
// It must only be called on a graph already known to be acyclic (build
// mode, after Build returned no cycles); a cyclic graph would recurse
// forever, so Propagate defends with an in-flight marker and simply stops
// expanding a node it is already computing, rather than looping.
func (g *Graph) Propagate() {
	inProgress := make(map[NodeKey]bool)
	for _, n := range g.Nodes {
		exportedOf(n, inProgress)
	}
	for _, n := range g.Nodes {
		n.inherited = computeInherited(n)
		n.inheritedOnce = true
	}
}

// Inherited returns this node's computed inherited view. Propagate must
// have been called on the owning graph first.
func (n *Node) Inherited() *Inherited {
	if !n.inheritedOnce {
		return &Inherited{}
	}
	return n.inherited
}

// Exported returns this node's own public attributes plus whatever it
// re-exports through public dependency edges. Propagate must have been
// called first.
func (n *Node) Exported() *Inherited {
	if !n.exportedOnce {
		return &Inherited{}
	}
	return n.exported
}

func exportedOf(n *Node, inProgress map[NodeKey]bool) *Inherited {
	if n.exportedOnce {
		return n.exported
	}
	if inProgress[n.Key] {
		// Defensive only: Build() rejects cycles before Propagate runs.
		return &Inherited{}
	}
	inProgress[n.Key] = true
	defer delete(inProgress, n.Key)

	own := &Inherited{
		Includes:        n.Module.Includes.Propagated(),
		Definitions:     n.Module.Definitions.Propagated(),
		Libraries:       n.Module.Libraries.Propagated(),
		CompilerOptions: n.Module.CompilerOptions.Propagated(),
		LinkerOptions:   n.Module.LinkerOptions.Propagated(),
	}
	for _, e := range n.Edges {
		if !e.Public {
			continue
		}
		own = mergeInherited(own, exportedOf(e.To, inProgress))
	}
	n.exported = own
	n.exportedOnce = true
	return own
}

func computeInherited(n *Node) *Inherited {
	var acc *Inherited = &Inherited{}
	for _, e := range n.Edges {
		acc = mergeInherited(acc, e.To.Exported())
	}
	return acc
}

func mergeInherited(a, b *Inherited) *Inherited {
	return &Inherited{
		Includes:        dedupeStrings(append(append([]string{}, a.Includes...), b.Includes...)),
		Definitions:     dedupeDefinitions(append(append([]module.Definition{}, a.Definitions...), b.Definitions...)),
		Libraries:       dedupeStrings(append(append([]string{}, a.Libraries...), b.Libraries...)),
		CompilerOptions: append(append([]string{}, a.CompilerOptions...), b.CompilerOptions...),
		LinkerOptions:   append(append([]string{}, a.LinkerOptions...), b.LinkerOptions...),
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func dedupeDefinitions(in []module.Definition) []module.Definition {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if seen[v.Key()] {
			continue
		}
		seen[v.Key()] = true
		out = append(out, v)
	}
	return out
}

// EffectiveIncludes returns a node's full compile-time include set: its own
// joined (public+private) includes plus everything inherited (§8, "Access
// propagation").
func (n *Node) EffectiveIncludes() []string {
	return dedupeStrings(append(n.Module.Includes.Joined(identity), n.Inherited().Includes...))
}

// EffectiveDefinitions returns a node's full compile-time definition set.
func (n *Node) EffectiveDefinitions() []module.Definition {
	return dedupeDefinitions(append(n.Module.Definitions.Joined(module.Definition.Key), n.Inherited().Definitions...))
}

// EffectiveLibraries returns a node's full link-time library set.
func (n *Node) EffectiveLibraries() []string {
	return dedupeStrings(append(n.Module.Libraries.Joined(identity), n.Inherited().Libraries...))
}

// EffectiveCompilerOptions returns a node's full compiler-flag set.
func (n *Node) EffectiveCompilerOptions() []string {
	return append(n.Module.CompilerOptions.Joined(identity), n.Inherited().CompilerOptions...)
}

// EffectiveLinkerOptions returns a node's full linker-flag set.
func (n *Node) EffectiveLinkerOptions() []string {
	return append(n.Module.LinkerOptions.Joined(identity), n.Inherited().LinkerOptions...)
}

func identity(s string) string { return s }
