// Package external declares the narrow, host-implemented contracts
// spec.md §6 places outside the engine's scope: the term graph, the SMT
// core's valuation and lemma channel, the quantifier instantiator, the
// sygus term database, and the solution reconstructor. pkg/synth is
// written against these interfaces only; pkg/external/fake provides
// minimal in-memory stand-ins for its own tests, the way the teacher's
// concrete_solvers.go hands out ready-to-use implementations of
// pkg/minikanren's solver interfaces rather than leaving every caller to
// write its own.
package external

import (
	"context"

	"github.com/gitrdm/sivsynth/pkg/dag"
)

// TermGraph is the host's expression representation. pkg/dag.Arena
// satisfies it; a host with its own term representation can adapt its own
// graph to this interface instead of adopting pkg/dag.
type TermGraph interface {
	Negate(n *dag.Node) *dag.Node
	Substitute(n *dag.Node, repl map[*dag.Node]*dag.Node) *dag.Node
	ConjunctiveLayers(n *dag.Node) []*dag.Node
	DisjunctiveLayers(n *dag.Node) []*dag.Node
}

// Valuation is the SMT core's model-query surface (spec.md §6).
type Valuation interface {
	EnsureLiteral(n *dag.Node) (lit int, err error)
	HasSatValue(lit int) (value bool, known bool)
}

// OutputChannel is the SMT core's inbound lemma/decision channel.
type OutputChannel interface {
	Lemma(n *dag.Node)
	RequirePhase(lit int, value bool)
}

// InstantiatorCallback is implemented by the engine (pkg/synth.Solver) and
// invoked by the host's Instantiator during a check round (spec.md §4.6
// sub-state 3, §9 "polymorphism over callbacks").
type InstantiatorCallback interface {
	DoAddInstantiation(ctx context.Context, subs []*dag.Node) bool
	IsEligibleForInstantiation(n *dag.Node) bool
	AddLemma(n *dag.Node) bool
}

// Instantiator is the host's quantifier-instantiation engine, driving
// InstantiatorCallback zero or more times per Check round.
type Instantiator interface {
	Check(ctx context.Context, cb InstantiatorCallback) error
}

// SygusTermDb is the host's grammar-construction surface, consulted only
// when si_reconstruct is enabled; synthesizing or enumerating sygus
// grammars is out of scope for this engine (spec.md §1 Non-goals).
type SygusTermDb interface {
	MkSygusDefaultType(typ *dag.Type) *dag.Type
	MkSygusTemplateType(templ, arg *dag.Node) *dag.Type
	RegisterSygusType(typ *dag.Type) bool
	HasKind(typ *dag.Type, kind dag.Kind) bool
	ContainsVtsTerm(n *dag.Node) bool
	RewriteVtsSymbols(n *dag.Node) *dag.Node
}

// SingleInvSol is the host's solution-reconstruction surface (spec.md
// §4.7 step 6 and §6); reconstructing into syntactic/grammar form is out
// of scope here (spec.md §1 Non-goals) beyond calling out to it.
type SingleInvSol interface {
	SimplifySolution(n *dag.Node) *dag.Node
	ReconstructSolution(n *dag.Node, typ *dag.Type) (*dag.Node, error)
	DebugSolution(n *dag.Node) string
	DebugTermSize(n *dag.Node) int
}

// UnsatCoreOracle optionally restricts and weakens solution construction
// (spec.md §4.7 step 2, §6 "optional unsat-core oracle").
type UnsatCoreOracle interface {
	GetUnsatCoreLemmas() (active []int, weakenings map[int]*dag.Node, ok bool)
}

// EntailmentOracle is consulted in partial-SI "need-next-candidate" mode
// (spec.md §4.6 sub-state 2). A false return is a hard incompleteness per
// spec.md §9's open-question resolution: the engine signals it explicitly
// via synth.ErrEntailmentIncomplete rather than exiting silently.
type EntailmentOracle interface {
	NextSICandidate(ctx context.Context, partialSI *dag.Node) (*dag.Node, bool)
}
