// Package transition implements TransitionInference (spec.md §4.4): given a
// function f and a vector of state variables, it extracts pre/trans/post
// components from a quantified formula's clauses and drives a
// deterministic-trace unfolding toward a trivial inductive invariant.
//
// The clause-classification-then-fixed-point shape is grounded on
// slg_engine.go's subgoal evaluation loop (pkg/minikanren): classify each
// clause once, accumulate a result set, then iterate a deterministic
// driver to a fixed point or a detected loop. Constant extraction from
// clause literals is grounded on fd_constraints.go's pattern of scanning a
// constraint's literals for a solvable equality.
package transition

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/gitrdm/sivsynth/internal/xlog"
	"github.com/gitrdm/sivsynth/pkg/dag"
	"github.com/gitrdm/sivsynth/pkg/trace"
)

var log = xlog.For("transition")

// Component indexes the three transition-system parts (spec.md §3, §9
// "model as sum types, not integers").
type Component int

const (
	Post  Component = -1
	Trans Component = 0
	Pre   Component = 1
)

func (c Component) String() string {
	switch c {
	case Post:
		return "POST"
	case Trans:
		return "TRANS"
	case Pre:
		return "PRE"
	default:
		return "UNKNOWN_COMPONENT"
	}
}

// TraceStatus is the result of one IncrementTrace step (spec.md §4.4, §9).
type TraceStatus int

const (
	Invalid TraceStatus = iota - 1
	OK
	Terminated
	Counterexample
)

func (s TraceStatus) String() string {
	switch s {
	case Invalid:
		return "INVALID"
	case OK:
		return "OK"
	case Terminated:
		return "TERMINATED"
	case Counterexample:
		return "COUNTEREXAMPLE"
	default:
		return "UNKNOWN_STATUS"
	}
}

// clause is one surviving, classified, normalized clause.
type clause struct {
	component Component
	formula   *dag.Node // stored per the polarity convention (spec.md §4.4)
	constEq   map[*dag.Node]*dag.Node
}

// Inference is TransitionInference. Construct with New, call Process (any
// number of times; each call's clauses accumulate), then query Get/Complete
// or drive AutoUnfold.
type Inference struct {
	arena      *dag.Arena
	f          *dag.Node
	stateVars  []*dag.Node // x_1..x_m
	primedVars []*dag.Node // x'_1..x'_m, allocated lazily on first trans clause

	clauses  []clause
	complete bool
	diags    *multierror.Error

	stepLimit int
}

// Option configures an Inference at construction.
type Option func(*Inference)

// WithStepLimit overrides the deterministic-unfold step bound (spec.md §9
// open question: the source hard-codes 100; this repo surfaces it).
func WithStepLimit(n int) Option { return func(inf *Inference) { inf.stepLimit = n } }

// New implements TransitionInference.initialize(f, vars) (spec.md §4.4).
func New(a *dag.Arena, f *dag.Node, vars []*dag.Node, opts ...Option) *Inference {
	inf := &Inference{
		arena:     a,
		f:         f,
		stateVars: vars,
		complete:  true,
		stepLimit: 100,
	}
	for _, opt := range opts {
		opt(inf)
	}
	return inf
}

func (inf *Inference) primed() []*dag.Node {
	if inf.primedVars == nil {
		inf.primedVars = make([]*dag.Node, len(inf.stateVars))
		for i, v := range inf.stateVars {
			inf.primedVars[i] = inf.arena.Fresh(dag.BOUND_VAR, v.Type(), fmt.Sprintf("%s_next", v.Name()))
		}
	}
	return inf.primedVars
}

// Process treats n as a conjunction of clauses, each a disjunction of
// literals, and classifies each clause's top-level f-applications per
// spec.md §4.4. Clauses that fail the shape test are rejected and mark the
// inference incomplete; Process never returns an error for that — failures
// are non-fatal per spec.md §4.8 and are recorded in Diagnostics.
func (inf *Inference) Process(n *dag.Node) error {
	for _, c := range inf.arena.ConjunctiveLayers(n) {
		inf.processClause(c)
	}
	return nil
}

func (inf *Inference) processClause(c *dag.Node) {
	disjuncts := inf.arena.DisjunctiveLayers(c)

	var negOccurrence, posOccurrence *dag.Node
	var other []*dag.Node
	secondFunc := false

	for _, d := range disjuncts {
		if app, neg := matchesF(d, inf.f); app != nil {
			if neg {
				if negOccurrence != nil {
					inf.reject(c, "clause repeats negative polarity of f at top level")
					return
				}
				negOccurrence = app
			} else {
				if posOccurrence != nil {
					inf.reject(c, "clause repeats positive polarity of f at top level")
					return
				}
				posOccurrence = app
			}
			continue
		}
		if containsApplication(d, inf.f) {
			inf.reject(c, "clause embeds f deeper than a top-level disjunct")
			return
		}
		if containsOtherFunction(d, inf.f) {
			secondFunc = true
		}
		other = append(other, d)
	}

	if secondFunc {
		inf.reject(c, "clause references a second function")
		return
	}

	var component Component
	var currentArgs, nextArgs []*dag.Node
	switch {
	case negOccurrence != nil && posOccurrence != nil:
		component = Trans
		currentArgs = negOccurrence.Children()
		nextArgs = posOccurrence.Children()
	case negOccurrence != nil:
		component = Post
		currentArgs = negOccurrence.Children()
	case posOccurrence != nil:
		component = Pre
		currentArgs = posOccurrence.Children()
	default:
		inf.reject(c, "clause has no occurrence of f")
		return
	}

	subst := make(map[*dag.Node]*dag.Node, len(currentArgs)+len(nextArgs))
	for i, arg := range currentArgs {
		subst[arg] = inf.stateVars[i]
	}
	if component == Trans {
		pv := inf.primed()
		for i, arg := range nextArgs {
			subst[arg] = pv[i]
		}
	}

	normalizedOther := make([]*dag.Node, len(other))
	for i, d := range other {
		normalizedOther[i] = inf.arena.Substitute(d, subst)
	}
	remaining := inf.arena.Or(normalizedOther...)

	var stored *dag.Node
	if component == Post {
		stored = remaining
	} else {
		stored = inf.arena.Negate(remaining)
	}

	relevantVars := inf.stateVars
	if component == Trans {
		relevantVars = inf.primed()
	}
	constEq := extractConstEq(inf.arena, stored, relevantVars)

	inf.clauses = append(inf.clauses, clause{component: component, formula: stored, constEq: constEq})
}

func (inf *Inference) reject(c *dag.Node, reason string) {
	inf.complete = false
	inf.diags = multierror.Append(inf.diags, fmt.Errorf("%s: %s", c.String(), reason))
	log.WithField("reason", reason).Debug("transition clause rejected")
}

// matchesF reports whether d is a top-level f-application (possibly
// negated), returning the application node and whether it was negated.
func matchesF(d *dag.Node, f *dag.Node) (app *dag.Node, negated bool) {
	if d.Kind() == dag.APPLY_UF && d.Operator().SameAs(f) {
		return d, false
	}
	if d.Kind() == dag.NOT {
		inner := d.Children()[0]
		if inner.Kind() == dag.APPLY_UF && inner.Operator().SameAs(f) {
			return inner, true
		}
	}
	return nil, false
}

// containsApplication reports whether f is applied anywhere within n,
// guarded against re-visiting shared subterms.
func containsApplication(n *dag.Node, f *dag.Node) bool {
	seen := make(map[*dag.Node]struct{})
	var walk func(*dag.Node) bool
	walk = func(n *dag.Node) bool {
		if _, ok := seen[n]; ok {
			return false
		}
		seen[n] = struct{}{}
		if n.Kind() == dag.APPLY_UF {
			if n.Operator().SameAs(f) {
				return true
			}
			for _, c := range n.Children() {
				if walk(c) {
					return true
				}
			}
			return false
		}
		for _, c := range n.Children() {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return walk(n)
}

// arithRelationNames are the theory operator names this reference engine
// recognizes as ordinary arithmetic, never as a second state predicate —
// without a real host TermGraph's theory tags (spec.md §6), a name table
// is the only way this package can tell "<(x,3)" apart from an actual
// sibling invariant symbol sharing f's arity and Bool range.
var arithRelationNames = map[string]struct{}{
	"+": {}, "-": {}, "*": {}, "/": {},
	"<": {}, "<=": {}, ">": {}, ">=": {}, "=": {},
}

// containsOtherFunction reports whether n applies some function other than
// f that shares f's signature shape (same arity and range sort) and is not
// a recognized arithmetic relation — the heuristic this package uses to
// flag "a second [state-predicate-shaped] function" per spec.md §4.4.
func containsOtherFunction(n *dag.Node, f *dag.Node) bool {
	fType := f.Type()
	seen := make(map[*dag.Node]struct{})
	var walk func(*dag.Node) bool
	walk = func(n *dag.Node) bool {
		if _, ok := seen[n]; ok {
			return false
		}
		seen[n] = struct{}{}
		if n.Kind() == dag.APPLY_UF {
			op := n.Operator()
			if _, arith := arithRelationNames[op.Name()]; !arith &&
				!op.SameAs(f) && fType.IsFunction() && op.Type().IsFunction() &&
				len(op.Type().Args()) == len(fType.Args()) && op.Type().Range().Equal(fType.Range()) {
				return true
			}
		}
		for _, c := range n.Children() {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return walk(n)
}

// extractConstEq scans formula's top-level conjuncts for equalities
// solvable for one of vars, propagating earlier substitutions through
// later terms (spec.md §4.4 "Constant extraction").
func extractConstEq(a *dag.Arena, formula *dag.Node, vars []*dag.Node) map[*dag.Node]*dag.Node {
	tracked := make(map[*dag.Node]struct{}, len(vars))
	for _, v := range vars {
		tracked[v] = struct{}{}
	}

	constEq := make(map[*dag.Node]*dag.Node)
	conjuncts := a.ConjunctiveLayers(formula)

	// A small number of passes lets a solved binding feed into later
	// conjuncts' right-hand sides (e.g. a clause fixing x before another
	// clause defines y in terms of x); the pack's fd_constraints.go
	// performs the analogous repeated-pass propagation for linear domain
	// constraints.
	for pass := 0; pass < len(vars)+1; pass++ {
		progressed := false
		for _, conj := range conjuncts {
			if conj.Kind() != dag.EQ {
				continue
			}
			lhs, rhs := conj.Children()[0], conj.Children()[1]
			if _, ok := constEq[lhs]; ok {
				continue
			}
			if _, ok := constEq[rhs]; ok {
				continue
			}
			if _, isTracked := tracked[lhs]; isTracked && !occurs(lhs, rhs) {
				constEq[lhs] = a.Substitute(rhs, constEq)
				progressed = true
				continue
			}
			if _, isTracked := tracked[rhs]; isTracked && !occurs(rhs, lhs) {
				constEq[rhs] = a.Substitute(lhs, constEq)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return constEq
}

func occurs(v *dag.Node, in *dag.Node) bool {
	for _, free := range dag.FreeBoundVars(in) {
		if free.SameAs(v) {
			return true
		}
	}
	return in.SameAs(v)
}

// Get returns the conjunction of every clause stored under component, or
// the Bool constant true if none were recorded.
func (inf *Inference) Get(c Component) *dag.Node {
	var conjuncts []*dag.Node
	for _, cl := range inf.clauses {
		if cl.component == c {
			conjuncts = append(conjuncts, cl.formula)
		}
	}
	return inf.arena.And(conjuncts...)
}

// Complete reports whether every processed clause matched the expected
// transition-system shape (spec.md §4.8: "marks complete = false when any
// clause fails the shape test").
func (inf *Inference) Complete() bool { return inf.complete }

// Diagnostics returns the accumulated per-clause rejection reasons.
func (inf *Inference) Diagnostics() error {
	if inf.diags == nil {
		return nil
	}
	return inf.diags.ErrorOrNil()
}

func (inf *Inference) soleConstEq(c Component) map[*dag.Node]*dag.Node {
	var found map[*dag.Node]*dag.Node
	count := 0
	for _, cl := range inf.clauses {
		if cl.component == c {
			found = cl.constEq
			count++
		}
	}
	if count != 1 {
		return nil
	}
	return found
}

func (inf *Inference) solePlusClause(c Component) (*clause, bool) {
	var found *clause
	count := 0
	for i := range inf.clauses {
		if inf.clauses[i].component == c {
			found = &inf.clauses[i]
			count++
		}
	}
	if count != 1 {
		return nil, false
	}
	return found, true
}

// InitializeTrace seeds dt from const_eq[loc] if it saturates x_1..x_m
// (forward) or, driven backward, the same state-variable tuple sourced
// from the post component. Returns 0 on success, -1 otherwise (spec.md
// §4.4).
func (inf *Inference) InitializeTrace(dt *trace.DetTrace, fwd bool) int {
	seedComponent := Pre
	if !fwd {
		seedComponent = Post
	}
	ce := inf.soleConstEq(seedComponent)
	if ce == nil {
		return -1
	}
	vals := make([]*dag.Node, len(inf.stateVars))
	for i, v := range inf.stateVars {
		t, ok := ce[v]
		if !ok {
			return -1
		}
		vals[i] = t
	}
	if !dt.Increment("seed", vals) {
		return -1
	}
	return 0
}

// IncrementTrace substitutes dt.Curr() into the opposite guard (post when
// fwd, pre otherwise); if that evaluates false, returns Counterexample.
// Otherwise it substitutes into the transition guard; if false, returns
// Terminated. Otherwise it computes the next tuple from the transition
// clause's const_eq and calls dt.Increment; a detected loop also returns
// Terminated (spec.md §4.4).
func (inf *Inference) IncrementTrace(dt *trace.DetTrace, fwd bool) TraceStatus {
	curr := dt.Curr()
	if len(curr) != len(inf.stateVars) {
		return Invalid
	}
	substMap := make(map[*dag.Node]*dag.Node, len(inf.stateVars))
	for i, v := range inf.stateVars {
		substMap[v] = curr[i]
	}

	oppositeComponent := Post
	if !fwd {
		oppositeComponent = Pre
	}
	opposite := evalGround(inf.arena, inf.arena.Substitute(inf.Get(oppositeComponent), substMap))
	if isFalse(opposite) {
		return Counterexample
	}

	trans := evalGround(inf.arena, inf.arena.Substitute(inf.Get(Trans), substMap))
	if isFalse(trans) {
		return Terminated
	}

	transClause, ok := inf.solePlusClause(Trans)
	if !ok {
		return Invalid
	}
	pv := inf.primed()
	next := make([]*dag.Node, len(inf.stateVars))
	for i, p := range pv {
		t, ok := transClause.constEq[p]
		if !ok {
			return Invalid
		}
		resolved := inf.arena.Substitute(t, substMap)
		next[i] = evalGround(inf.arena, resolved)
	}

	if !dt.Increment("step", next) {
		return Terminated
	}
	return OK
}

func isFalse(n *dag.Node) bool {
	return n.IsConst() && n.Value() == false
}

// evalGround recursively folds ground arithmetic, comparison, equality, and
// propositional structure over integer constants so the unfolding driver
// can evaluate a fully-substituted guard (spec.md §8 scenario 4's x<3)
// rather than leaving it as an unevaluated application. This is a narrow
// convenience for the deterministic-trace driver, not a theory decision
// procedure: it only folds the small set of ground operators the driver
// itself needs and otherwise returns the (possibly partially rebuilt) node
// unchanged.
func evalGround(a *dag.Arena, n *dag.Node) *dag.Node {
	switch n.Kind() {
	case dag.CONST, dag.BOUND_VAR, dag.SKOLEM, dag.VARIABLE:
		return n
	case dag.EQ:
		lhs := evalGround(a, n.Children()[0])
		rhs := evalGround(a, n.Children()[1])
		if lhs.IsConst() && rhs.IsConst() {
			return a.Const(lhs.Value() == rhs.Value(), dag.Bool)
		}
		if lhs == n.Children()[0] && rhs == n.Children()[1] {
			return n
		}
		return a.Mk(dag.EQ, n.Type(), lhs, rhs)
	case dag.NOT:
		inner := evalGround(a, n.Children()[0])
		if inner.IsConst() {
			return a.Const(!inner.Value().(bool), dag.Bool)
		}
		if inner == n.Children()[0] {
			return n
		}
		return a.Mk(dag.NOT, n.Type(), inner)
	case dag.AND, dag.OR:
		shortCircuit := false // false short-circuits AND, true short-circuits OR
		if n.Kind() == dag.OR {
			shortCircuit = true
		}
		children := make([]*dag.Node, len(n.Children()))
		changed := false
		allConst := true
		for i, c := range n.Children() {
			children[i] = evalGround(a, c)
			if children[i] != c {
				changed = true
			}
			if children[i].IsConst() && children[i].Value().(bool) == shortCircuit {
				return a.Const(shortCircuit, dag.Bool)
			}
			if !children[i].IsConst() {
				allConst = false
			}
		}
		if allConst {
			return a.Const(!shortCircuit, dag.Bool) // every child equals !shortCircuit, else it would have short-circuited above
		}
		if !changed {
			return n
		}
		return a.Mk(n.Kind(), n.Type(), children...)
	case dag.APPLY_UF:
		children := make([]*dag.Node, len(n.Children()))
		changed := false
		for i, c := range n.Children() {
			children[i] = evalGround(a, c)
			if children[i] != c {
				changed = true
			}
		}
		if folded, ok := foldArithOrComparison(a, n.Operator().Name(), children, n.Type()); ok {
			return folded
		}
		if !changed {
			return n
		}
		return a.Apply(n.Operator(), n.Type(), children...)
	default:
		return n
	}
}

func foldArithOrComparison(a *dag.Arena, op string, children []*dag.Node, typ *dag.Type) (*dag.Node, bool) {
	if len(children) != 2 || !children[0].IsConst() || !children[1].IsConst() {
		return nil, false
	}
	li, lok := children[0].Value().(int)
	ri, rok := children[1].Value().(int)
	if !lok || !rok {
		return nil, false
	}
	switch op {
	case "+":
		return a.Const(li+ri, typ), true
	case "-":
		return a.Const(li-ri, typ), true
	case "*":
		return a.Const(li*ri, typ), true
	case "<":
		return a.Const(li < ri, dag.Bool), true
	case "<=":
		return a.Const(li <= ri, dag.Bool), true
	case ">":
		return a.Const(li > ri, dag.Bool), true
	case ">=":
		return a.Const(li >= ri, dag.Bool), true
	default:
		return nil, false
	}
}

// AutoUnfold drives the deterministic-trace unfolding to a fixed point or
// a counterexample, bounded by the Inference's step limit (spec.md §4.4,
// §9). It returns OK (status 0) if the bound is exhausted inconclusively,
// Terminated if the trace reached a fixed point with no counterexample
// (the "succeeds" case per spec.md §4.4), or Counterexample/Invalid
// otherwise — in every case the accompanying formula is the DNF of the
// states actually visited.
func (inf *Inference) AutoUnfold(fwd bool) (TraceStatus, *dag.Node) {
	dt := trace.New()
	if inf.InitializeTrace(dt, fwd) != 0 {
		return Invalid, dt.ConstructFormula(inf.arena, inf.stateVars)
	}
	status := OK
	for i := 0; i < inf.stepLimit; i++ {
		status = inf.IncrementTrace(dt, fwd)
		if status != OK {
			break
		}
	}
	return status, dt.ConstructFormula(inf.arena, inf.stateVars)
}
