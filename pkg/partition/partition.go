// Package partition implements SingleInvocationPartition (spec.md §4.3):
// given a formula and a set of synthesis functions, it separates the
// formula's conjuncts into single-invocation (SI), non-single-invocation
// (NSI), all, and non-ground-single-invocation (NGSI) buckets, building the
// anti-skolemization maps (function ↔ invocation term ↔ surrogate
// variable) the rest of the engine is built against.
//
// The indexing discipline — build a lookup structure once during
// Initialize, then query it repeatedly during Process — is grounded on
// pldb.go's Database/Relation/factIndex pattern (pkg/minikanren); the
// substitution/capture-avoidance machinery is grounded on
// nominal_unify.go's variable-substitution handling.
package partition

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/gitrdm/sivsynth/internal/xlog"
	"github.com/gitrdm/sivsynth/pkg/dag"
)

var log = xlog.For("partition")

// Bucket is the closed enumeration of conjunct classifications (spec.md §3,
// §9 "tagged variants for classification").
type Bucket int

const (
	SI Bucket = iota
	NSI
	ALL
	NGSI
)

func (b Bucket) String() string {
	switch b {
	case SI:
		return "SI"
	case NSI:
		return "NSI"
	case ALL:
		return "ALL"
	case NGSI:
		return "NGSI"
	default:
		return "UNKNOWN_BUCKET"
	}
}

// FunctionDescriptor records everything the partition knows about one
// recognized synthesis function (spec.md §3 "Function descriptor").
type FunctionDescriptor struct {
	Func           *dag.Node // the function symbol node
	InvocationTerm *dag.Node // f(s_1,...,s_m)
	FoVar          *dag.Node // surrogate first-order variable F_f
	Accepted       bool
}

type bucketEntry struct {
	source     *dag.Node // original conjunct, pre function-rewriting
	normalized *dag.Node // func_inv-substituted, argument-normalized form
}

// Partition is the immutable-after-Process result of partitioning one
// formula over one function set. Construct with Initialize or
// InitializeInferFuncs, then call Process exactly once.
type Partition struct {
	arena     *dag.Arena
	stateVars []*dag.Node // s_1 .. s_m
	argTypes  []*dag.Type
	funcs     map[*dag.Node]*FunctionDescriptor

	buckets   map[Bucket][]bucketEntry
	dAllVars  []*dag.Node
	processed bool
	failure   error
}

// Initialize is entry point (ii) of spec.md §4.3: accept an explicit
// function list. All functions must share the same argument-type
// signature; argTypes is computed from that shared signature by the
// caller and passed in explicitly (the narrow host TermGraph interface
// doesn't give this package authority to invent a signature on its own).
func Initialize(a *dag.Arena, funcs []*dag.Node, argTypes []*dag.Type) (*Partition, error) {
	if len(funcs) == 0 {
		return nil, fmt.Errorf("partition: at least one function is required")
	}

	p := &Partition{
		arena:    a,
		argTypes: argTypes,
		funcs:    make(map[*dag.Node]*FunctionDescriptor, len(funcs)),
		buckets:  make(map[Bucket][]bucketEntry),
	}

	p.stateVars = make([]*dag.Node, len(argTypes))
	for j, t := range argTypes {
		p.stateVars[j] = a.Fresh(dag.BOUND_VAR, t, fmt.Sprintf("s%d", j+1))
	}

	for _, f := range funcs {
		accepted := isAntiSkolemizableType(f, argTypes)
		desc := &FunctionDescriptor{Func: f, Accepted: accepted}
		if accepted {
			rng := f.Type().Range()
			if rng == nil {
				rng = f.Type() // arity-0 function: the "range" is just its own type
			}
			desc.InvocationTerm = invocationTerm(a, f, p.stateVars, rng)
			desc.FoVar = a.Fresh(dag.VARIABLE, rng, "F_"+f.Name())
		}
		p.funcs[f] = desc
	}

	return p, nil
}

func invocationTerm(a *dag.Arena, f *dag.Node, stateVars []*dag.Node, rng *dag.Type) *dag.Node {
	if len(stateVars) == 0 {
		return f // arity-0: the function symbol itself is the invocation term
	}
	return a.Apply(f, rng, stateVars...)
}

// isAntiSkolemizableType is the acceptance predicate of spec.md §4.3:
// accept f iff its argument types, in order, equal argTypes (arity-0
// functions accepted when argTypes is empty).
func isAntiSkolemizableType(f *dag.Node, argTypes []*dag.Type) bool {
	return dag.ArgTypesEqual(f.Type(), argTypes)
}

// InitializeInferFuncs is entry point (i) of spec.md §4.3: infer the
// function set from the first APPLY_UF encountered in n.
func InitializeInferFuncs(a *dag.Arena, n *dag.Node) (*Partition, error) {
	f := firstApplication(n)
	if f == nil {
		return nil, fmt.Errorf("partition: no APPLY_UF found to infer a function set from")
	}
	return Initialize(a, []*dag.Node{f}, f.Type().Args())
}

func firstApplication(n *dag.Node) *dag.Node {
	seen := make(map[*dag.Node]struct{})
	var found *dag.Node
	var walk func(*dag.Node)
	walk = func(n *dag.Node) {
		if found != nil {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		if n.Kind() == dag.APPLY_UF {
			found = n.Operator()
			return
		}
		for _, c := range n.Children() {
			walk(c)
			if found != nil {
				return
			}
		}
	}
	walk(n)
	return found
}

// Process partitions n's top-level conjuncts into SI/NSI/ALL/NGSI,
// implementing spec.md §4.3 steps 1-3. Failure propagates: any top-level
// FORALL subterm reachable while collecting conjuncts causes the
// partition to produce an empty result (every GetConjunct(bucket) then
// returns the Bool constant true), matching "Partition: total" (spec.md
// §4.8) — this is never a panic, only an empty, still-queryable result.
func (p *Partition) Process(n *dag.Node) error {
	if p.processed {
		return fmt.Errorf("partition: Process called twice on the same instance")
	}
	p.processed = true

	conjuncts, ok := collectConjuncts(p.arena, n)
	if !ok {
		p.failure = fmt.Errorf("partition: embedded FORALL prevents single-invocation recognition")
		log.WithError(p.failure).Debug("partition collection aborted")
		return nil
	}

	var diagnostics *multierror.Error
	for i, c := range conjuncts {
		p.processConjunct(i, c, &diagnostics)
	}
	if diagnostics != nil {
		p.failure = diagnostics.ErrorOrNil()
	}
	return nil
}

// collectConjuncts implements spec.md §4.3 step 1: walk down conjunctive
// layers, pushing ¬ through ¬OR/¬AND, bailing with ok=false the moment a
// bare or negated FORALL is reached at any level of that descent.
func collectConjuncts(a *dag.Arena, n *dag.Node) ([]*dag.Node, bool) {
	switch n.Kind() {
	case dag.FORALL:
		return nil, false
	case dag.AND:
		var out []*dag.Node
		for _, c := range n.Children() {
			sub, ok := collectConjuncts(a, c)
			if !ok {
				return nil, false
			}
			out = append(out, sub...)
		}
		return out, true
	case dag.NOT:
		inner := n.Children()[0]
		switch inner.Kind() {
		case dag.FORALL:
			return nil, false
		case dag.OR:
			return collectConjuncts(a, a.Negate(inner))
		case dag.AND:
			// ¬(a∧b) is one conjunct; push ¬ one level to get ¬a∨¬b.
			return []*dag.Node{a.Negate(inner)}, true
		case dag.NOT:
			return collectConjuncts(a, inner.Children()[0])
		default:
			return []*dag.Node{n}, true
		}
	default:
		return []*dag.Node{n}, true
	}
}

func (p *Partition) processConjunct(index int, c *dag.Node, diagnostics **multierror.Error) {
	simplified := simplifyQF(p.arena, c)

	var firstArgs []*dag.Node
	multiInvocation := false
	normalized := p.replaceApplications(simplified, &firstArgs, &multiInvocation)
	normalized = normalizeArguments(p.arena, normalized, firstArgs, p.stateVars)

	free := dag.FreeBoundVars(normalized)
	stateSet := make(map[*dag.Node]struct{}, len(p.stateVars))
	for _, s := range p.stateVars {
		stateSet[s] = struct{}{}
	}
	groundOK := true
	for _, v := range free {
		if _, ok := stateSet[v]; !ok {
			groundOK = false
			break
		}
	}

	p.dAllVars = appendUnique(p.dAllVars, free...)
	p.buckets[ALL] = append(p.buckets[ALL], bucketEntry{source: simplified, normalized: normalized})

	isSI := !multiInvocation && groundOK
	if isSI {
		siForm := p.substituteInvocationsWithFoVars(normalized)
		p.buckets[SI] = append(p.buckets[SI], bucketEntry{source: simplified, normalized: siForm})
		return
	}

	p.buckets[NSI] = append(p.buckets[NSI], bucketEntry{source: simplified, normalized: normalized})
	if multiInvocation {
		*diagnostics = multierror.Append(*diagnostics,
			fmt.Errorf("conjunct %d: accepted function invoked with differing argument tuples", index))
	} else {
		// groundOK is false here: a non-ground single-invocation conjunct.
		*diagnostics = multierror.Append(*diagnostics,
			fmt.Errorf("conjunct %d: free bound variables escape the shared state-variable tuple", index))
		p.buckets[NGSI] = append(p.buckets[NGSI], bucketEntry{source: simplified, normalized: normalized})
	}
}

// replaceApplications implements spec.md §4.3 step 2.b: recursively
// collect every APPLY_UF f(a_1..a_m) for accepted f, tracking the first
// argument tuple seen and flagging multiInvocation the moment a later one
// differs, replacing every such application (regardless of tuple) by
// func_inv[f].
func (p *Partition) replaceApplications(n *dag.Node, firstArgs *[]*dag.Node, multiInvocation *bool) *dag.Node {
	if n.Kind() == dag.APPLY_UF {
		if desc, ok := p.funcs[n.Operator()]; ok && desc.Accepted {
			args := n.Children()
			if *firstArgs == nil {
				*firstArgs = args
			} else if !sameArgs(*firstArgs, args) {
				*multiInvocation = true
			}
			return desc.InvocationTerm
		}
		changed := false
		newArgs := make([]*dag.Node, len(n.Children()))
		for i, c := range n.Children() {
			newArgs[i] = p.replaceApplications(c, firstArgs, multiInvocation)
			if newArgs[i] != c {
				changed = true
			}
		}
		if !changed {
			return n
		}
		return p.arena.Apply(n.Operator(), n.Type(), newArgs...)
	}

	if len(n.Children()) == 0 {
		return n
	}
	changed := false
	newChildren := make([]*dag.Node, len(n.Children()))
	for i, c := range n.Children() {
		newChildren[i] = p.replaceApplications(c, firstArgs, multiInvocation)
		if newChildren[i] != c {
			changed = true
		}
	}
	if !changed {
		return n
	}
	return p.arena.Mk(n.Kind(), n.Type(), newChildren...)
}

func sameArgs(a, b []*dag.Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameAs(b[i]) {
			return false
		}
	}
	return true
}

// normalizeArguments implements spec.md §4.3 step 2.c. If every element of
// firstArgs is a distinct BOUND_VAR, substitute them by stateVars
// throughout normalized. Otherwise, substitute only the positions that are
// distinct bound variables and, for every other position j, append a
// guarding disjunct s_j ≠ a_j so the rewrite remains logically equivalent.
func normalizeArguments(a *dag.Arena, normalized *dag.Node, firstArgs []*dag.Node, stateVars []*dag.Node) *dag.Node {
	if firstArgs == nil {
		return normalized
	}

	repeated := make(map[*dag.Node]int, len(firstArgs))
	for _, arg := range firstArgs {
		repeated[arg]++
	}

	subst := make(map[*dag.Node]*dag.Node, len(firstArgs))
	var guards []*dag.Node
	for j, arg := range firstArgs {
		if arg.Kind() == dag.BOUND_VAR && repeated[arg] == 1 {
			subst[arg] = stateVars[j]
			continue
		}
		guards = append(guards, a.Mk(dag.NOT, dag.Bool, a.Mk(dag.EQ, dag.Bool, stateVars[j], arg)))
	}

	rewritten := a.Substitute(normalized, subst)
	if len(guards) == 0 {
		return rewritten
	}
	return a.Or(append(guards, rewritten)...)
}

func (p *Partition) substituteInvocationsWithFoVars(n *dag.Node) *dag.Node {
	repl := make(map[*dag.Node]*dag.Node, len(p.funcs))
	for _, desc := range p.funcs {
		if desc.Accepted {
			repl[desc.InvocationTerm] = desc.FoVar
		}
	}
	return p.arena.Substitute(n, repl)
}

func appendUnique(vars []*dag.Node, more ...*dag.Node) []*dag.Node {
	seen := make(map[*dag.Node]struct{}, len(vars))
	for _, v := range vars {
		seen[v] = struct{}{}
	}
	for _, v := range more {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			vars = append(vars, v)
		}
	}
	return vars
}

// GetConjunct returns the conjunction of bucket's normalized entries, or
// the Bool constant true if empty (spec.md §4.3).
func (p *Partition) GetConjunct(b Bucket) *dag.Node {
	entries := p.buckets[b]
	conjuncts := make([]*dag.Node, len(entries))
	for i, e := range entries {
		conjuncts[i] = e.normalized
	}
	return p.arena.And(conjuncts...)
}

// IsPurelySingleInvocation reports whether NSI is empty.
func (p *Partition) IsPurelySingleInvocation() bool {
	return len(p.buckets[NSI]) == 0
}

// IsNonGroundSingleInvocation reports whether every NSI conjunct is in NSI
// solely because it failed the ground check (spec.md §4.3:
// "NGSI.size() == NSI.size()").
func (p *Partition) IsNonGroundSingleInvocation() bool {
	return len(p.buckets[NGSI]) == len(p.buckets[NSI])
}

// Failed reports whether Process bailed out entirely due to an embedded
// FORALL (spec.md §4.3 step 1).
func (p *Partition) Failed() bool { return p.failure != nil && len(p.buckets[ALL]) == 0 }

// Diagnostics returns the accumulated non-fatal routing reasons collected
// during Process (an addition beyond the bare spec; see SPEC_FULL.md §4).
func (p *Partition) Diagnostics() error { return p.failure }

// StateVars returns s_1..s_m.
func (p *Partition) StateVars() []*dag.Node { return p.stateVars }

// AllVars returns d_all_vars: the accumulated union of free bound
// variables across all ALL conjuncts (spec.md §4.3 step 3).
func (p *Partition) AllVars() []*dag.Node { return p.dAllVars }

// Descriptor returns the FunctionDescriptor for f, or nil if f was never
// part of this partition's function set.
func (p *Partition) Descriptor(f *dag.Node) *FunctionDescriptor { return p.funcs[f] }

// GetSpecificationInst implements spec.md §4.3's getSpecificationInst:
// recursively rewrites bucket's source (pre-normalization) conjuncts,
// replacing every accepted-function application by the body of the
// corresponding lambda (applied to that application's concrete argument
// children) and beta-reducing.
func (p *Partition) GetSpecificationInst(b Bucket, lambdas map[*dag.Node]*dag.Node) *dag.Node {
	entries := p.buckets[b]
	conjuncts := make([]*dag.Node, len(entries))
	for i, e := range entries {
		conjuncts[i] = p.inlineApplications(e.source, lambdas)
	}
	return p.arena.And(conjuncts...)
}

func (p *Partition) inlineApplications(n *dag.Node, lambdas map[*dag.Node]*dag.Node) *dag.Node {
	if n.Kind() == dag.APPLY_UF {
		args := make([]*dag.Node, len(n.Children()))
		changed := false
		for i, c := range n.Children() {
			args[i] = p.inlineApplications(c, lambdas)
			if args[i] != c {
				changed = true
			}
		}
		if lambda, ok := lambdas[n.Operator()]; ok {
			return p.arena.BetaReduce(lambda, args)
		}
		if !changed {
			return n
		}
		return p.arena.Apply(n.Operator(), n.Type(), args...)
	}
	if len(n.Children()) == 0 {
		return n
	}
	changed := false
	newChildren := make([]*dag.Node, len(n.Children()))
	for i, c := range n.Children() {
		newChildren[i] = p.inlineApplications(c, lambdas)
		if newChildren[i] != c {
			changed = true
		}
	}
	if !changed {
		return n
	}
	return p.arena.Mk(n.Kind(), n.Type(), newChildren...)
}

// simplifyQF performs minimal quantifier-free rewriting (spec.md §4.3 step
// 2.a): double-negation elimination and trivial n-ary AND/OR collapsing.
// It intentionally does not attempt full theory simplification — that is
// the host Rewriter's job (spec.md §1, out of scope).
func simplifyQF(a *dag.Arena, n *dag.Node) *dag.Node {
	if len(n.Children()) == 0 {
		return n
	}
	children := make([]*dag.Node, len(n.Children()))
	changed := false
	for i, c := range n.Children() {
		children[i] = simplifyQF(a, c)
		if children[i] != c {
			changed = true
		}
	}

	if n.Kind() == dag.NOT && children[0].Kind() == dag.NOT {
		return children[0].Children()[0]
	}
	if (n.Kind() == dag.AND || n.Kind() == dag.OR) && len(children) == 1 {
		return children[0]
	}

	if n.Kind() == dag.APPLY_UF {
		if !changed {
			return n
		}
		return a.Apply(n.Operator(), n.Type(), children...)
	}
	if !changed {
		return n
	}
	return a.Mk(n.Kind(), n.Type(), children...)
}
