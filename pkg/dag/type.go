package dag

import "strings"

// Type is a minimal sort system sufficient to classify function argument
// and range types for single-invocation partitioning. It intentionally
// does not model a full SMT-LIB sort lattice (polymorphism, datatypes) —
// those live in the host's real TermGraph (spec.md §6); this is just
// enough to decide "does f's signature equal arg_types exactly".
type Type struct {
	name string
	args []*Type // non-nil only for Function types
	rng  *Type   // non-nil only for Function types
}

var (
	Bool = &Type{name: "Bool"}
	Int  = &Type{name: "Int"}
	Real = &Type{name: "Real"}
)

// Uninterpreted returns (and caches) an uninterpreted sort by name.
func Uninterpreted(name string) *Type {
	return uninterpretedCache.intern(name)
}

type sortCache struct {
	mu    map[string]*Type
}

var uninterpretedCache = newSortCache()

func newSortCache() *sortCache {
	return &sortCache{mu: make(map[string]*Type)}
}

func (c *sortCache) intern(name string) *Type {
	if t, ok := c.mu[name]; ok {
		return t
	}
	t := &Type{name: name}
	c.mu[name] = t
	return t
}

// Function builds a function sort over args returning rng.
func Function(args []*Type, rng *Type) *Type {
	return &Type{name: "->", args: args, rng: rng}
}

// IsFunction reports whether t is a function sort.
func (t *Type) IsFunction() bool { return t.rng != nil }

// Args returns the argument sorts of a function sort (nil otherwise).
func (t *Type) Args() []*Type { return t.args }

// Range returns the range sort of a function sort (nil otherwise).
func (t *Type) Range() *Type { return t.rng }

// Equal is structural equality over the sort tree.
func (t *Type) Equal(other *Type) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	if t.name != other.name || len(t.args) != len(other.args) {
		return false
	}
	for i := range t.args {
		if !t.args[i].Equal(other.args[i]) {
			return false
		}
	}
	if (t.rng == nil) != (other.rng == nil) {
		return false
	}
	if t.rng != nil && !t.rng.Equal(other.rng) {
		return false
	}
	return true
}

func (t *Type) String() string {
	if !t.IsFunction() {
		return t.name
	}
	parts := make([]string, 0, len(t.args)+1)
	for _, a := range t.args {
		parts = append(parts, a.String())
	}
	parts = append(parts, t.rng.String())
	return "(" + strings.Join(parts, " -> ") + ")"
}

// ArgTypesEqual reports whether a function type's declared argument types
// equal argTypes in order. Used by the partition's acceptance predicate
// (spec.md §4.3, isAntiSkolemizableType).
func ArgTypesEqual(fnType *Type, argTypes []*Type) bool {
	if !fnType.IsFunction() {
		return len(argTypes) == 0
	}
	if len(fnType.Args()) != len(argTypes) {
		return false
	}
	for i, a := range fnType.Args() {
		if !a.Equal(argTypes[i]) {
			return false
		}
	}
	return true
}
