// Package fake provides minimal in-memory stand-ins for pkg/external's
// host contracts, used only by pkg/synth's own tests and by cmd/sivsynth's
// demonstration driver — never a production SMT/instantiation frontend
// (spec.md §1 Non-goals). Grounded on the teacher's concrete_solvers.go
// pattern of shipping ready-to-use implementations alongside an
// interface, rather than leaving every caller to hand-roll one.
package fake

import (
	"context"
	"sync"

	"github.com/gitrdm/sivsynth/pkg/dag"
	"github.com/gitrdm/sivsynth/pkg/external"
)

// Instantiator replays a fixed, ordered list of substitution tuples, one
// per Check call; once the list is exhausted, each further Check call
// offers no tuple.
type Instantiator struct {
	mu   sync.Mutex
	subs [][]*dag.Node
	next int
}

// NewInstantiator builds an Instantiator that yields each of subs, in
// order, across successive Check calls — one tuple per call.
func NewInstantiator(subs [][]*dag.Node) *Instantiator {
	return &Instantiator{subs: subs}
}

func (f *Instantiator) Check(ctx context.Context, cb external.InstantiatorCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.subs) {
		return nil
	}
	tuple := f.subs[f.next]
	f.next++
	cb.DoAddInstantiation(ctx, tuple)
	return nil
}

// Valuation is a Valuation backed by a plain map from literal to truth
// value; EnsureLiteral mints a fresh literal id per distinct node.
type Valuation struct {
	mu      sync.Mutex
	ids     map[*dag.Node]int
	values  map[int]bool
	known   map[int]bool
	counter int
}

// NewValuation builds an empty Valuation.
func NewValuation() *Valuation {
	return &Valuation{
		ids:    make(map[*dag.Node]int),
		values: make(map[int]bool),
		known:  make(map[int]bool),
	}
}

func (v *Valuation) EnsureLiteral(n *dag.Node) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.ids[n]; ok {
		return id, nil
	}
	v.counter++
	v.ids[n] = v.counter
	return v.counter, nil
}

func (v *Valuation) HasSatValue(lit int) (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.values[lit], v.known[lit]
}

// Assign records a literal's truth value, as if the host's SMT core had
// decided it; used by tests to drive Solver.Check through a specific
// guard-assignment sub-state.
func (v *Valuation) Assign(lit int, value bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[lit] = value
	v.known[lit] = true
}

// OutputChannel records every lemma and phase request it receives, in
// order, for test assertions.
type OutputChannel struct {
	mu     sync.Mutex
	Lemmas []*dag.Node
	Phases []PhaseRequest
}

// PhaseRequest is one recorded RequirePhase call.
type PhaseRequest struct {
	Lit   int
	Value bool
}

// NewOutputChannel builds an empty OutputChannel.
func NewOutputChannel() *OutputChannel { return &OutputChannel{} }

func (o *OutputChannel) Lemma(n *dag.Node) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Lemmas = append(o.Lemmas, n)
}

func (o *OutputChannel) RequirePhase(lit int, value bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Phases = append(o.Phases, PhaseRequest{Lit: lit, Value: value})
}

// EntailmentOracle replays a fixed, ordered list of candidate SI
// conjectures; once exhausted it reports failure, exercising spec.md
// §4.6 sub-state 2's hard-incompleteness path.
type EntailmentOracle struct {
	mu         sync.Mutex
	candidates []*dag.Node
	next       int
}

// NewEntailmentOracle builds an EntailmentOracle yielding candidates in
// order, then failing.
func NewEntailmentOracle(candidates []*dag.Node) *EntailmentOracle {
	return &EntailmentOracle{candidates: candidates}
}

func (e *EntailmentOracle) NextSICandidate(ctx context.Context, partialSI *dag.Node) (*dag.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next >= len(e.candidates) {
		return nil, false
	}
	c := e.candidates[e.next]
	e.next++
	return c, true
}

// UnsatCoreOracle returns a fixed, caller-assembled restriction.
type UnsatCoreOracle struct {
	Active     []int
	Weakenings map[int]*dag.Node
	OK         bool
}

func (u *UnsatCoreOracle) GetUnsatCoreLemmas() ([]int, map[int]*dag.Node, bool) {
	return u.Active, u.Weakenings, u.OK
}
