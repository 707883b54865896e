// Package dag provides the expression representation the rest of the
// single-invocation engine is built against: an immutable, hash-consed DAG
// of formula/term nodes. It plays the role spec.md §6 assigns to the host's
// TermGraph — a real host substitutes its own implementation behind the
// pkg/external.TermGraph interface; this package is the reference one used
// by the engine's own tests and by cmd/sivsynth.
//
// Structural sharing matters here the same way it does in the teacher's
// Term/Substitution pair (pkg/minikanren core.go): nodes never mutate, and
// two nodes are the same term iff they are the same pointer, which the
// Arena guarantees by interning on construction.
package dag

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Node is an opaque immutable DAG node. Structural equality is pointer
// equality after hash-consing; never compare Nodes with Equal-by-field,
// always compare pointers (or call Node.SameAs for clarity at call sites).
type Node struct {
	kind     Kind
	operator *Node // function symbol for APPLY_UF; nil otherwise
	children []*Node
	typ      *Type
	value    interface{} // populated for CONST
	id       int64       // populated for BOUND_VAR / SKOLEM / VARIABLE
	name     string      // debug name, populated for BOUND_VAR / SKOLEM / VARIABLE
}

// Kind returns the node's tag.
func (n *Node) Kind() Kind { return n.kind }

// Operator returns the APPLY_UF function symbol, or nil.
func (n *Node) Operator() *Node { return n.operator }

// Children returns the node's ordered child list. Callers must not mutate
// the returned slice.
func (n *Node) Children() []*Node { return n.children }

// Type returns the node's sort.
func (n *Node) Type() *Type { return n.typ }

// IsConst reports whether n is a CONST leaf.
func (n *Node) IsConst() bool { return n.kind == CONST }

// Value returns the constant payload (only meaningful when IsConst()).
func (n *Node) Value() interface{} { return n.value }

// ID returns the unique identity counter for BOUND_VAR / SKOLEM / VARIABLE
// nodes (0 for any other kind).
func (n *Node) ID() int64 { return n.id }

// Name returns the debug name for BOUND_VAR / SKOLEM / VARIABLE nodes.
func (n *Node) Name() string { return n.name }

// SameAs is pointer identity, spelled out for readability at call sites
// that might otherwise reach for a field-by-field comparison.
func (n *Node) SameAs(other *Node) bool { return n == other }

// String renders n in a small s-expression syntax. It is for
// diagnostics/tests only; it is not a parser round-trip format.
func (n *Node) String() string {
	switch n.kind {
	case CONST:
		return fmt.Sprintf("%v", n.value)
	case BOUND_VAR, SKOLEM, VARIABLE:
		if n.name != "" {
			return n.name
		}
		return fmt.Sprintf("%s_%d", n.kind, n.id)
	case APPLY_UF:
		parts := make([]string, len(n.children))
		for i, c := range n.children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("%s(%s)", n.operator.String(), strings.Join(parts, ", "))
	case NOT:
		return fmt.Sprintf("(not %s)", n.children[0].String())
	case FORALL, EXISTS:
		parts := make([]string, len(n.children)-1)
		for i := 0; i < len(n.children)-1; i++ {
			parts[i] = n.children[i].String()
		}
		return fmt.Sprintf("(%s (%s) %s)", n.kind, strings.Join(parts, " "), n.children[len(n.children)-1].String())
	default:
		parts := make([]string, len(n.children))
		for i, c := range n.children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("(%s %s)", n.kind, strings.Join(parts, " "))
	}
}

// FreeBoundVars returns the set of BOUND_VAR nodes occurring free in n
// (not under a binder that captures them), in first-seen order. A seen set
// keyed by variable identity, the way term_utils.go's copyTermRecursive
// guards on variable identity, keeps each variable to one entry; compound
// subterms are not memoized, so a shared subterm is walked once per
// occurrence.
func FreeBoundVars(n *Node) []*Node {
	seen := make(map[*Node]struct{})
	var order []*Node
	var bound map[*Node]struct{}

	var walk func(n *Node, locallyBound map[*Node]struct{})
	walk = func(n *Node, locallyBound map[*Node]struct{}) {
		if n.kind == BOUND_VAR {
			if _, isBound := locallyBound[n]; isBound {
				return
			}
			if _, dup := seen[n]; dup {
				return
			}
			seen[n] = struct{}{}
			order = append(order, n)
			return
		}
		if n.kind.IsQuantifier() {
			inner := make(map[*Node]struct{}, len(locallyBound)+len(n.children)-1)
			for k := range locallyBound {
				inner[k] = struct{}{}
			}
			for i := 0; i < len(n.children)-1; i++ {
				inner[n.children[i]] = struct{}{}
			}
			walk(n.children[len(n.children)-1], inner)
			return
		}
		for _, c := range n.children {
			walk(c, locallyBound)
		}
		if n.operator != nil {
			walk(n.operator, locallyBound)
		}
	}
	_ = bound
	walk(n, nil)
	return order
}

// Arena is the hash-consing table. All Node construction goes through an
// Arena so that structural equality reduces to pointer equality, mirroring
// the design note in spec.md §9: "replace the global current node manager
// with an explicit TermGraph handle passed to every constructor."
type Arena struct {
	mu      sync.Mutex
	interns map[string]*Node
	counter atomic.Int64
}

// NewArena creates an empty hash-consing arena.
func NewArena() *Arena {
	return &Arena{interns: make(map[string]*Node)}
}

func (a *Arena) nextID() int64 { return a.counter.Add(1) }

// Const interns a constant leaf.
func (a *Arena) Const(value interface{}, typ *Type) *Node {
	key := fmt.Sprintf("CONST|%v|%p", value, typ)
	return a.intern(key, func() *Node {
		return &Node{kind: CONST, value: value, typ: typ}
	})
}

// Fresh mints a new, never-hash-consed BOUND_VAR, SKOLEM, or VARIABLE node.
// Each call returns a distinct node even if name is repeated, matching the
// teacher's Var semantics (core.go: identity is the id, name is only for
// display).
func (a *Arena) Fresh(kind Kind, typ *Type, name string) *Node {
	if kind != BOUND_VAR && kind != SKOLEM && kind != VARIABLE {
		panic("dag: Fresh called with a non-variable Kind " + kind.String())
	}
	return &Node{kind: kind, typ: typ, id: a.nextID(), name: name}
}

// Apply interns an APPLY_UF node over operator and args. Two calls with
// the same operator pointer, the same argument pointers in the same
// order, and the same range type return the identical *Node.
func (a *Arena) Apply(operator *Node, typ *Type, args ...*Node) *Node {
	key := a.structuralKey(APPLY_UF, operator, typ, args)
	return a.intern(key, func() *Node {
		children := make([]*Node, len(args))
		copy(children, args)
		return &Node{kind: APPLY_UF, operator: operator, children: children, typ: typ}
	})
}

// Mk interns a generic compound node of the given kind over children.
// Used for AND/OR/NOT/EQ/ITE and for FORALL/EXISTS/LAMBDA (where the last
// child is the body and the preceding children are the bound variables).
func (a *Arena) Mk(kind Kind, typ *Type, children ...*Node) *Node {
	if kind == APPLY_UF {
		panic("dag: use Arena.Apply to build APPLY_UF nodes")
	}
	key := a.structuralKey(kind, nil, typ, children)
	return a.intern(key, func() *Node {
		cp := make([]*Node, len(children))
		copy(cp, children)
		return &Node{kind: kind, children: cp, typ: typ}
	})
}

func (a *Arena) structuralKey(kind Kind, operator *Node, typ *Type, children []*Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%p|%p|", kind, operator, typ)
	for _, c := range children {
		fmt.Fprintf(&b, "%p,", c)
	}
	return b.String()
}

func (a *Arena) intern(key string, build func() *Node) *Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.interns[key]; ok {
		return n
	}
	n := build()
	a.interns[key] = n
	return n
}

// Size reports how many distinct nodes the arena has interned. Useful for
// diagnostics and tests asserting that sharing actually happened.
func (a *Arena) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.interns)
}
