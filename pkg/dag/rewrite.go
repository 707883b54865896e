package dag

// Negate returns the one-level push of ¬ through n's top connective,
// mirroring TermDb::simpleNegate (spec.md §1, an out-of-scope external
// collaborator in the real system; this is the minimal in-repo substitute
// the partition and transition-inference packages rewrite against). It
// does not recurse: callers push negation level by level themselves, the
// way SingleInvocationPartition.Process (spec.md §4.3 step 1) does when
// walking conjunctive layers.
func (a *Arena) Negate(n *Node) *Node {
	switch n.kind {
	case NOT:
		return n.children[0]
	case AND:
		negated := make([]*Node, len(n.children))
		for i, c := range n.children {
			negated[i] = a.Mk(NOT, Bool, c)
		}
		return a.Mk(OR, Bool, negated...)
	case OR:
		negated := make([]*Node, len(n.children))
		for i, c := range n.children {
			negated[i] = a.Mk(NOT, Bool, c)
		}
		return a.Mk(AND, Bool, negated...)
	default:
		return a.Mk(NOT, Bool, n)
	}
}

// Substitute performs a capture-avoiding replacement of every node
// appearing as a key of repl by its mapped value, walking the DAG once per
// distinct subterm (memoized on node identity, the same visited-guard
// discipline FreeBoundVars uses). Quantifiers are walked into but their own
// bound variables are never substituted even if they appear as keys,
// matching ordinary capture-avoidance.
func (a *Arena) Substitute(n *Node, repl map[*Node]*Node) *Node {
	memo := make(map[*Node]*Node)
	var walk func(*Node) *Node
	walk = func(n *Node) *Node {
		if v, ok := memo[n]; ok {
			return v
		}
		var result *Node
		if n.kind.IsQuantifier() {
			bound := n.children[:len(n.children)-1]
			body := n.children[len(n.children)-1]
			// bound variables shadow repl for the body walk
			shadowed := make(map[*Node]*Node, len(repl))
			for k, v := range repl {
				shadowed[k] = v
			}
			for _, b := range bound {
				delete(shadowed, b)
			}
			newBody := a.substituteWith(body, shadowed)
			children := append(append([]*Node{}, bound...), newBody)
			result = a.Mk(n.kind, n.typ, children...)
		} else if replacement, ok := repl[n]; ok {
			result = replacement
		} else if n.kind == APPLY_UF {
			args := make([]*Node, len(n.children))
			changed := false
			for i, c := range n.children {
				args[i] = walk(c)
				if args[i] != c {
					changed = true
				}
			}
			if !changed {
				result = n
			} else {
				result = a.Apply(n.operator, n.typ, args...)
			}
		} else if len(n.children) > 0 {
			children := make([]*Node, len(n.children))
			changed := false
			for i, c := range n.children {
				children[i] = walk(c)
				if children[i] != c {
					changed = true
				}
			}
			if !changed {
				result = n
			} else {
				result = a.Mk(n.kind, n.typ, children...)
			}
		} else {
			result = n
		}
		memo[n] = result
		return result
	}
	return walk(n)
}

// substituteWith is Substitute with a caller-supplied replacement map,
// used internally to thread a shadowed map into nested quantifiers without
// re-running the outer memo table (each quantifier scope gets its own).
func (a *Arena) substituteWith(n *Node, repl map[*Node]*Node) *Node {
	return a.Substitute(n, repl)
}

// BetaReduce substitutes args for lambda's bound variables in its body and
// returns the reduced body. Used by SingleInvocationPartition.
// GetSpecificationInst (spec.md §4.3) to inline a solution lambda at an
// invocation site.
func (a *Arena) BetaReduce(lambda *Node, args []*Node) *Node {
	if lambda.kind != LAMBDA {
		panic("dag: BetaReduce requires a LAMBDA node")
	}
	bound := lambda.children[:len(lambda.children)-1]
	body := lambda.children[len(lambda.children)-1]
	if len(bound) != len(args) {
		panic("dag: BetaReduce arity mismatch")
	}
	repl := make(map[*Node]*Node, len(bound))
	for i, b := range bound {
		repl[b] = args[i]
	}
	return a.Substitute(body, repl)
}

// ConjunctiveLayers flattens nested AND nodes into their leaf conjuncts,
// pushing NOT through ¬OR (¬(a∨b) becomes ¬a∧¬b) and collapsing ¬¬ first.
// A negated AND is returned whole, as is any other node that is not an
// AND, such as a literal (EQ, APPLY_UF, or a negation of either).
func (a *Arena) ConjunctiveLayers(n *Node) []*Node {
	switch n.kind {
	case AND:
		var out []*Node
		for _, c := range n.children {
			out = append(out, a.ConjunctiveLayers(c)...)
		}
		return out
	case NOT:
		inner := n.children[0]
		if inner.kind == OR {
			pushed := a.Negate(inner) // ¬(a∨b) = ¬a∧¬b
			return a.ConjunctiveLayers(pushed)
		}
		if inner.kind == NOT {
			return a.ConjunctiveLayers(inner.children[0])
		}
		return []*Node{n}
	default:
		return []*Node{n}
	}
}

// DisjunctiveLayers is the dual of ConjunctiveLayers, flattening nested OR
// nodes into their leaf disjuncts. Used by TransitionInference (spec.md
// §4.4) to classify each clause's top-level literals.
func (a *Arena) DisjunctiveLayers(n *Node) []*Node {
	switch n.kind {
	case OR:
		var out []*Node
		for _, c := range n.children {
			out = append(out, a.DisjunctiveLayers(c)...)
		}
		return out
	case NOT:
		inner := n.children[0]
		if inner.kind == AND {
			pushed := a.Negate(inner)
			return a.DisjunctiveLayers(pushed)
		}
		if inner.kind == NOT {
			return a.DisjunctiveLayers(inner.children[0])
		}
		return []*Node{n}
	default:
		return []*Node{n}
	}
}

// And builds (possibly trivial) n-ary conjunctions: empty -> the Bool
// constant true, single element -> that element, else an AND node.
func (a *Arena) And(conjuncts ...*Node) *Node {
	if len(conjuncts) == 0 {
		return a.Const(true, Bool)
	}
	if len(conjuncts) == 1 {
		return conjuncts[0]
	}
	return a.Mk(AND, Bool, conjuncts...)
}

// Or is the dual of And for disjunctions, with empty -> false.
func (a *Arena) Or(disjuncts ...*Node) *Node {
	if len(disjuncts) == 0 {
		return a.Const(false, Bool)
	}
	if len(disjuncts) == 1 {
		return disjuncts[0]
	}
	return a.Mk(OR, Bool, disjuncts...)
}
