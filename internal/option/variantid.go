package option

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// VariantID computes the deterministic hash over the sorted set of
// (option-name, stringified-value) pairs restricted to options whose
// ChangesResultBinary is true (§3, "Variant-id"). It follows the teacher's
// build.Ctx.Digest() shape (internal/build/build.go): an FNV-128a hash of a
// canonical byte stream, hex-encoded.
//
// Two bindings with equal option maps (restricted to binary-affecting
// options) produce equal ids regardless of map insertion order (§8,
// "Determinism of variant-id").
func VariantID(bound []Bound) string {
	type pair struct{ name, value string }
	var pairs []pair
	for _, b := range bound {
		if !b.Descriptor.ChangesResultBinary {
			continue
		}
		pairs = append(pairs, pair{b.Descriptor.Name, b.Raw})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })

	h := fnv.New128a()
	for _, p := range pairs {
		fmt.Fprintf(h, "%s=%s;", p.name, p.value)
	}
	return fmt.Sprintf("%032x", h.Sum(nil))
}
