// Package synth implements SingleInvSolver (spec.md §4.5-§4.8): the
// top-level orchestrator that wires pkg/partition, pkg/transition,
// pkg/dedup, and the host-provided pkg/external collaborators into the
// CEGIS-style single-invocation synthesis loop.
//
// The immutable-problem / mutable-monotonically-growing-state shape is
// grounded on solver.go's Solver/SolverState pair (pkg/minikanren): a
// Solver is constructed once against a fixed constraint set and then
// driven through repeated Check-like rounds that only ever grow its
// recorded state, never rewrite history in place. The round-by-round
// driver loop itself is grounded on search.go's DFS/iterative-deepening
// dispatch, generalized here to the three-substate dispatch of spec.md
// §4.6.
package synth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gitrdm/sivsynth/internal/config"
	"github.com/gitrdm/sivsynth/internal/xlog"
	"github.com/gitrdm/sivsynth/pkg/dag"
	"github.com/gitrdm/sivsynth/pkg/dedup"
	"github.com/gitrdm/sivsynth/pkg/external"
	"github.com/gitrdm/sivsynth/pkg/partition"
	"github.com/gitrdm/sivsynth/pkg/transition"
)

var log = xlog.For("synth")

// ErrEntailmentIncomplete is the distinguished fatal signal spec.md §4.6
// substate 2 / §7 / §9 calls for: partial-SI verification that cannot
// obtain a next SI candidate from the entailment oracle is a hard
// incompleteness, surfaced explicitly rather than returned as a silent
// (nil, false, nil).
var ErrEntailmentIncomplete = errors.New("synth: entailment oracle exhausted; partial-SI verification is incomplete")

// ErrAborted is returned by Initialize under the option-driven abort path
// (spec.md §7 "Option-driven abort"): si_abort, or si_mode=ALL_ABORT with
// no sygus-reconstruction support, on a non-single-invocation conjecture.
var ErrAborted = errors.New("synth: non-single-invocation conjecture, aborting per si_abort/ALL_ABORT")

// mode distinguishes the two top-level initialization paths of spec.md §4.5.
type mode int

const (
	modeFullSI mode = iota
	modePartialSI
)

// Template is the invariant template spec.md §4.5 step 5 composes when the
// conjecture is only partially single-invocation but matches a transition
// shape: templ = pre(x) ∨ I(x) (PRE mode) or post(x) ∧ I(x) (POST mode).
type Template struct {
	Mode config.InvTemplMode
	// Formula is the full template term.
	Formula *dag.Node
	// Arg is the invariant hole term I(x): a fresh skolem function applied
	// to the function's state variables, later handed to the host's sygus
	// grammar construction for that function (spec.md §4.5 step 5, "the
	// template and its argument are later embedded into the sygus grammar
	// for the corresponding function").
	Arg *dag.Node
	// TrivialInvariant is set when AutoUnfold (spec.md §4.4) discovered a
	// trivial inductive invariant by deterministic unfolding instead of
	// needing the hole I at all; nil when the unfold was inconclusive.
	TrivialInvariant *dag.Node
}

// Stats is the epoch-scoped solver statistics addition beyond the bare
// spec (SPEC_FULL.md §4): mirrors the teacher's SolverMonitor pattern
// (pkg/minikanren solver.go) of counting search effort alongside results.
type Stats struct {
	LemmasEmitted          int
	InstantiationsAccepted int
	InstantiationsDeduped  int
	Rounds                 int
}

// Epoch tags one "candidate conjecture" lifetime (spec.md §3 "Lifecycles")
// with a google/uuid identifier for log correlation, replacing the
// teacher's raw atomic counters for anything that crosses a log boundary.
type Epoch struct {
	ID    uuid.UUID
	Round int
}

// Solver is SingleInvSolver. Construct with New, call Initialize exactly
// once, then drive Check repeatedly until NeedsCheck reports false or a
// fatal error is returned.
//
// Solver follows the teacher's thread-safety idiom for exported mutable
// engine state (spec.md's own "single-threaded cooperative" model still
// allows a host to re-enter the engine from its own worker goroutine
// between suspension points): every mutating method takes mu.
type Solver struct {
	mu sync.Mutex

	arena *dag.Arena
	cfg   *config.Options
	id    uuid.UUID

	funcs          []*dag.Node
	progToSolIndex map[*dag.Node]int
	solIndexToFunc []*dag.Node

	part *partition.Partition

	transInf  map[*dag.Node]*transition.Inference
	templates map[*dag.Node]*Template

	trie             matchTrie
	activeConjecture *dag.Node

	stateSkolems map[*dag.Node]*dag.Node // s_j -> a_j
	skolemSet    map[*dag.Node]struct{}

	siGuard   *dag.Node
	fullGuard *dag.Node
	nsGuard   *dag.Node

	initialLemmas []*dag.Node

	lemmasProduced []*dag.Node
	inst           [][]*dag.Node
	currLemmas     []*dag.Node

	val        external.Valuation
	out        external.OutputChannel
	instr      external.Instantiator
	entailment external.EntailmentOracle
	unsatCore  external.UnsatCoreOracle

	mode        mode
	initialized bool
	aborted     bool

	epoch Epoch
	stats Stats
}

// matchTrie is the narrow surface Solver needs from either dedup.MatchTrie
// or dedup.ContextScoped (spec.md §6 "incremental" option selects between
// them).
type matchTrie interface {
	Add(conjecture *dag.Node, subs []*dag.Node) bool
}

// Option configures a Solver at construction.
type Option func(*Solver)

// WithInstantiator supplies the host's quantifier-instantiation engine
// (spec.md §6 Instantiator).
func WithInstantiator(i external.Instantiator) Option { return func(s *Solver) { s.instr = i } }

// WithEntailmentOracle supplies the optional partial-SI entailment oracle.
func WithEntailmentOracle(e external.EntailmentOracle) Option {
	return func(s *Solver) { s.entailment = e }
}

// WithUnsatCoreOracle supplies the optional unsat-core restriction/weakening
// oracle consulted by GetSolution under sol_min_core/sol_min_inst.
func WithUnsatCoreOracle(u external.UnsatCoreOracle) Option {
	return func(s *Solver) { s.unsatCore = u }
}

// New constructs a Solver against the given arena, host Valuation and
// OutputChannel, and configuration. The match-trie variant is selected by
// cfg.Incremental (spec.md §6 "incremental" option).
func New(a *dag.Arena, cfg *config.Options, val external.Valuation, out external.OutputChannel, opts ...Option) *Solver {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Solver{
		arena:          a,
		cfg:            cfg,
		id:             uuid.New(),
		progToSolIndex: make(map[*dag.Node]int),
		transInf:       make(map[*dag.Node]*transition.Inference),
		templates:      make(map[*dag.Node]*Template),
		stateSkolems:   make(map[*dag.Node]*dag.Node),
		skolemSet:      make(map[*dag.Node]struct{}),
		val:            val,
		out:            out,
	}
	if cfg.Incremental {
		s.trie = dedup.NewContextScoped()
	} else {
		s.trie = dedup.New()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.epoch = Epoch{ID: uuid.New()}
	return s
}

// negatedBody implements spec.md §4.5 step 1: build qq = ¬body, or, if the
// conjecture already arrives pre-negated (¬∀x.body), take the inner
// FORALL's body directly rather than negating twice.
func negatedBody(a *dag.Arena, conjecture *dag.Node) *dag.Node {
	if conjecture.Kind() == dag.NOT {
		inner := conjecture.Children()[0]
		if inner.Kind() == dag.FORALL {
			return inner.Children()[len(inner.Children())-1]
		}
	}
	if conjecture.Kind() == dag.FORALL {
		body := conjecture.Children()[len(conjecture.Children())-1]
		return a.Negate(body)
	}
	return a.Negate(conjecture)
}

// Initialize implements spec.md §4.5: partitions the conjecture over
// funcs, builds the fully-SI ground body or the partial-SI template, and
// emits the initial guarded lemma(s). Calling Initialize twice on the same
// instance is a precondition violation (spec.md §8 "round-trip /
// idempotence").
func (s *Solver) Initialize(ctx context.Context, conjecture *dag.Node, funcs []*dag.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return fmt.Errorf("synth: Initialize called twice on the same Solver")
	}
	s.initialized = true
	s.funcs = funcs
	s.solIndexToFunc = append([]*dag.Node{}, funcs...)
	for i, f := range funcs {
		s.progToSolIndex[f] = i
	}

	qq := negatedBody(s.arena, conjecture)

	argTypes := funcs[0].Type().Args()
	p, err := partition.Initialize(s.arena, funcs, argTypes)
	if err != nil {
		return err
	}
	if err := p.Process(qq); err != nil {
		return err
	}
	s.part = p

	for j, sv := range p.StateVars() {
		a := s.arena.Fresh(dag.SKOLEM, sv.Type(), fmt.Sprintf("a%d", j+1))
		s.stateSkolems[sv] = a
		s.skolemSet[a] = struct{}{}
	}

	if p.IsPurelySingleInvocation() {
		s.mode = modeFullSI
		s.emitGuardedSILemma()
		return nil
	}

	s.mode = modePartialSI
	if s.cfg.SIAbort || s.cfg.SIMode == config.SIAllAbort {
		if !s.cfg.SIReconstruct {
			s.aborted = true
			log.WithField("reason", "option-driven abort").Warn("synth: halting on non-single-invocation conjecture")
			return ErrAborted
		}
	}
	s.initTemplates(qq)
	s.initPartialSI()
	return nil
}

// emitGuardedSILemma implements spec.md §4.5 steps 4 and 6's common core:
// body' = ¬SI, skolemize s_1..s_m into a_1..a_m, and emit ¬G_si ∨ body' as
// the guard-required-true initial lemma. Shared by both the fully- and
// partially-single-invocation paths, which differ only in what else gets
// emitted alongside it.
func (s *Solver) emitGuardedSILemma() {
	bodyPrime := s.arena.Negate(s.part.GetConjunct(partition.SI))
	ground := s.arena.Substitute(bodyPrime, s.stateVarToSkolemMap())
	s.activeConjecture = ground

	s.siGuard = s.arena.Fresh(dag.VARIABLE, dag.Bool, "G_si")
	lemma := s.arena.Or(s.arena.Mk(dag.NOT, dag.Bool, s.siGuard), ground)
	s.emitInitialLemma(s.siGuard, lemma)
}

// initPartialSI implements spec.md §4.5 step 6's partial-SI addendum:
// alongside the usual guarded SI-only lemma, a full-specification lemma
// guarded by a distinct G_full requantifies the NSI conjuncts to enable
// verification (spec.md §4.6 substate 1).
func (s *Solver) initPartialSI() {
	s.emitGuardedSILemma()

	s.fullGuard = s.arena.Fresh(dag.VARIABLE, dag.Bool, "G_full")
	allVars := s.part.AllVars()
	nsi := s.part.GetConjunct(partition.NSI)
	var full *dag.Node
	if len(allVars) == 0 {
		full = nsi
	} else {
		full = s.arena.Mk(dag.FORALL, dag.Bool, append(append([]*dag.Node{}, allVars...), nsi)...)
	}
	fullLemma := s.arena.Or(s.arena.Mk(dag.NOT, dag.Bool, s.fullGuard), full)
	s.emitInitialLemma(s.fullGuard, fullLemma)
}

// initTemplates implements spec.md §4.5 step 5: for each accepted function,
// run TransitionInference over qq and either record a trivial invariant
// discovered by deterministic unfolding, or compose a PRE/POST template.
func (s *Solver) initTemplates(qq *dag.Node) {
	if s.cfg.InvTemplMode == config.InvTemplNone && !s.cfg.InvAutoUnfold {
		return
	}
	for _, f := range s.funcs {
		desc := s.part.Descriptor(f)
		if desc == nil || !desc.Accepted {
			continue
		}
		inf := transition.New(s.arena, f, s.part.StateVars(), transition.WithStepLimit(s.cfg.DetTraceStepLimit))
		if err := inf.Process(qq); err != nil {
			log.WithError(err).Debug("synth: transition inference processing failed")
		}
		s.transInf[f] = inf

		templ := &Template{Mode: s.cfg.InvTemplMode}
		if s.cfg.InvAutoUnfold {
			status, formula := inf.AutoUnfold(true)
			if status == transition.Terminated {
				templ.TrivialInvariant = formula
			}
		}
		if s.cfg.InvTemplMode != config.InvTemplNone {
			rng := dag.Bool
			iSym := s.arena.Fresh(dag.SKOLEM, dag.Function(argTypesOf(s.part.StateVars()), rng), "I_"+f.Name())
			iTerm := s.arena.Apply(iSym, rng, s.part.StateVars()...)
			switch s.cfg.InvTemplMode {
			case config.InvTemplPre:
				templ.Formula = s.arena.Mk(dag.OR, dag.Bool, inf.Get(transition.Pre), iTerm)
			case config.InvTemplPost:
				templ.Formula = s.arena.Mk(dag.AND, dag.Bool, inf.Get(transition.Post), iTerm)
			}
			templ.Arg = iTerm
		}
		s.templates[f] = templ
	}
}

func argTypesOf(vars []*dag.Node) []*dag.Type {
	types := make([]*dag.Type, len(vars))
	for i, v := range vars {
		types[i] = v.Type()
	}
	return types
}

func (s *Solver) stateVarToSkolemMap() map[*dag.Node]*dag.Node {
	m := make(map[*dag.Node]*dag.Node, len(s.stateSkolems))
	for sv, a := range s.stateSkolems {
		m[sv] = a
	}
	return m
}

func (s *Solver) emitInitialLemma(guard, lemma *dag.Node) {
	s.initialLemmas = append(s.initialLemmas, lemma)
	s.stats.LemmasEmitted++
	s.out.Lemma(lemma)
	lit, err := s.val.EnsureLiteral(guard)
	if err != nil {
		log.WithError(err).Warn("synth: EnsureLiteral failed for guard")
		return
	}
	s.out.RequirePhase(lit, true)
}

// InitialLemmas returns the lemma(s) emitted by Initialize (the host-facing
// getInitialSingleInvLemma operation of spec.md §6).
func (s *Solver) InitialLemmas() []*dag.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*dag.Node{}, s.initialLemmas...)
}

// IsSingleInvocation reports the boolean flag of spec.md §7: whether the
// conjecture was found fully single-invocation.
func (s *Solver) IsSingleInvocation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.part != nil && s.part.IsPurelySingleInvocation()
}

// NeedsCheck reports whether the solver has further work to do.
func (s *Solver) NeedsCheck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.aborted
}

// HasITEs reports whether the recorded instantiation history is large
// enough that GetSolution would produce at least one ITE branch.
func (s *Solver) HasITEs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lemmasProduced) > 1
}

// GetTransPre/GetTransPost/GetTemplate/GetTemplateArg implement the
// spec.md §6 template accessors.
func (s *Solver) GetTransPre(f *dag.Node) *dag.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inf, ok := s.transInf[f]; ok {
		return inf.Get(transition.Pre)
	}
	return nil
}

func (s *Solver) GetTransPost(f *dag.Node) *dag.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inf, ok := s.transInf[f]; ok {
		return inf.Get(transition.Post)
	}
	return nil
}

func (s *Solver) GetTemplate(f *dag.Node) *dag.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.templates[f]; ok {
		return t.Formula
	}
	return nil
}

func (s *Solver) GetTemplateArg(f *dag.Node) *dag.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.templates[f]; ok {
		return t.Arg
	}
	return nil
}

// DebugNsGuard exposes the current nonshared-candidate guard literal for
// diagnostics and demonstration drivers (cmd/sivsynth); a real host learns
// guard literals through its own lemma-processing pipeline instead.
func (s *Solver) DebugNsGuard() *dag.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nsGuard
}

// Stats returns a snapshot of the epoch-scoped solver statistics.
func (s *Solver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Epoch returns the current candidate-conjecture epoch.
func (s *Solver) Epoch() Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// ResetEpoch implements the "reset across epochs" lifecycle rule for
// partial-SI (spec.md §3 "Lifecycles"): the instantiation history is
// cleared and a fresh Epoch is minted, ready for the next candidate
// conjecture. The match trie is left alone — it already keys duplicates
// by conjecture identity, so switching the active conjecture naturally
// isolates the next epoch's dedup decisions without an explicit wipe.
func (s *Solver) ResetEpoch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetEpochLocked()
}

func (s *Solver) resetEpochLocked() {
	s.lemmasProduced = nil
	s.inst = nil
	s.currLemmas = nil
	s.epoch = Epoch{ID: uuid.New()}
	s.stats = Stats{}
}

// Check implements spec.md §4.6's three-substate dispatch for one round of
// the CEGIS-style loop.
func (s *Solver) Check(ctx context.Context) ([]*dag.Node, bool, error) {
	s.mu.Lock()
	s.stats.Rounds++
	s.epoch.Round++
	partial := s.mode == modePartialSI
	s.mu.Unlock()

	if partial {
		return s.checkPartial(ctx)
	}
	return s.checkNormal(ctx)
}

func (s *Solver) checkPartial(ctx context.Context) ([]*dag.Node, bool, error) {
	s.mu.Lock()
	nsGuard := s.nsGuard
	s.mu.Unlock()

	if nsGuard == nil {
		return s.needNextCandidate(ctx)
	}

	lit, err := s.val.EnsureLiteral(nsGuard)
	if err != nil {
		return nil, false, err
	}
	value, known := s.val.HasSatValue(lit)
	if known && !value {
		return s.candidateRefuted(ctx)
	}
	if !known {
		return s.needNextCandidate(ctx)
	}
	return s.checkNormal(ctx)
}

// needNextCandidate implements spec.md §4.6 substate 2: query the
// entailment oracle for a next SI conjecture; a failed query is a hard
// incompleteness (spec.md §9 open question, resolved explicitly per
// ErrEntailmentIncomplete rather than a silent exit).
func (s *Solver) needNextCandidate(ctx context.Context) ([]*dag.Node, bool, error) {
	if s.entailment == nil {
		return nil, false, ErrEntailmentIncomplete
	}
	cand, ok := s.entailment.NextSICandidate(ctx, s.part.GetConjunct(partition.SI))
	if !ok {
		return nil, false, ErrEntailmentIncomplete
	}

	s.mu.Lock()
	s.activeConjecture = cand
	s.nsGuard = s.arena.Fresh(dag.VARIABLE, dag.Bool, "G_ns")
	negated := s.arena.Negate(cand)
	ground := s.arena.Substitute(negated, s.stateVarToSkolemMap())
	lemma := s.arena.Or(s.arena.Mk(dag.NOT, dag.Bool, s.nsGuard), ground)
	s.emitInitialLemma(s.nsGuard, lemma)
	s.mu.Unlock()

	return []*dag.Node{lemma}, true, nil
}

// candidateRefuted implements spec.md §4.6 substate 1: the nonshared guard
// was assigned false, so the current candidate's SI body held for every
// instantiation. Build a solution per function, substitute it into NSI,
// and emit a negated verification lemma over fresh skolems for d_all_vars.
func (s *Solver) candidateRefuted(ctx context.Context) ([]*dag.Node, bool, error) {
	s.mu.Lock()
	lambdas := make(map[*dag.Node]*dag.Node, len(s.funcs))
	for _, f := range s.funcs {
		idx := s.progToSolIndex[f]
		sol, err := s.getSolutionLocked(idx, f.Type().Range())
		if err != nil {
			s.mu.Unlock()
			return nil, false, err
		}
		lambdas[f] = s.arena.Mk(dag.LAMBDA, f.Type(), append(append([]*dag.Node{}, s.part.StateVars()...), sol)...)
	}
	nsiInst := s.part.GetSpecificationInst(partition.NSI, lambdas)

	allVars := s.part.AllVars()
	skolemMap := make(map[*dag.Node]*dag.Node, len(allVars))
	for _, v := range allVars {
		skolemMap[v] = s.arena.Fresh(dag.SKOLEM, v.Type(), v.Name()+"_verify")
	}
	verification := s.arena.Negate(s.arena.Substitute(nsiInst, skolemMap))
	s.resetEpochLocked()
	s.nsGuard = nil
	s.mu.Unlock()

	s.out.Lemma(verification)
	return []*dag.Node{verification}, true, nil
}

// checkNormal implements spec.md §4.6 substate 3: drive the host
// Instantiator, which calls back into DoAddInstantiation zero or more
// times.
func (s *Solver) checkNormal(ctx context.Context) ([]*dag.Node, bool, error) {
	if s.instr == nil {
		return nil, false, nil
	}
	s.mu.Lock()
	s.currLemmas = nil
	s.mu.Unlock()

	if err := s.instr.Check(ctx, s); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	produced := s.currLemmas
	s.currLemmas = nil
	s.mu.Unlock()
	return produced, len(produced) > 0, nil
}

// DoAddInstantiation implements external.InstantiatorCallback (spec.md §4.6
// substate 3). subs is expected to carry one value per state variable
// (s_1..s_m, in partition.StateVars order) followed by one candidate value
// per accepted function's surrogate fo_var (in the Solver's original
// funcs order) — the full ground instantiation of every free variable the
// active conjecture's SI body mentions. This is this repository's concrete
// resolution of spec.md's otherwise-unspecified "substitution vector"
// shape: it lets GetSolution read a concrete candidate value directly out
// of the recorded instantiation instead of requiring a separate
// model-value query interface the bare spec never names.
func (s *Solver) DoAddInstantiation(ctx context.Context, subs []*dag.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := len(s.part.StateVars())
	if len(subs) != m+len(s.funcs) {
		log.WithField("got", len(subs)).WithField("want", m+len(s.funcs)).
			Warn("synth: substitution vector arity mismatch, rejecting")
		return false
	}

	if !s.trie.Add(s.activeConjecture, subs) {
		s.stats.InstantiationsDeduped++
		return false
	}
	s.stats.InstantiationsAccepted++

	substMap := make(map[*dag.Node]*dag.Node, m+len(s.funcs))
	for i, sv := range s.part.StateVars() {
		substMap[sv] = subs[i]
	}
	for _, f := range s.funcs {
		desc := s.part.Descriptor(f)
		if desc == nil || !desc.Accepted {
			continue
		}
		substMap[desc.FoVar] = subs[m+s.progToSolIndex[f]]
	}

	lem := s.arena.Substitute(s.part.GetConjunct(partition.SI), substMap)

	guard := s.siGuard
	if s.mode == modePartialSI {
		guard = s.nsGuard
	}
	guarded := lem
	if guard != nil {
		guarded = s.arena.Or(s.arena.Mk(dag.NOT, dag.Bool, guard), lem)
	}

	s.lemmasProduced = append(s.lemmasProduced, lem)
	s.inst = append(s.inst, subs)
	s.currLemmas = append(s.currLemmas, guarded)
	s.stats.LemmasEmitted++
	s.out.Lemma(guarded)
	return true
}

// IsEligibleForInstantiation implements external.InstantiatorCallback: the
// engine allows only non-skolem terms, or terms that are the engine's own
// state-variable skolems a_1..a_m (spec.md §6).
func (s *Solver) IsEligibleForInstantiation(n *dag.Node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.Kind() != dag.SKOLEM {
		return true
	}
	_, ok := s.skolemSet[n]
	return ok
}

// AddLemma implements external.InstantiatorCallback by forwarding directly
// to the host OutputChannel and recording it for this round's return value.
func (s *Solver) AddLemma(n *dag.Node) bool {
	s.mu.Lock()
	s.currLemmas = append(s.currLemmas, n)
	s.stats.LemmasEmitted++
	s.mu.Unlock()
	s.out.Lemma(n)
	return true
}

// GetSolution implements spec.md §4.7: ITE-cascade construction with
// constant-first stable sort and optional unsat-core restriction/weakening.
func (s *Solver) GetSolution(ctx context.Context, index int, syntacticType *dag.Type) (*dag.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSolutionLocked(index, syntacticType)
}

func (s *Solver) getSolutionLocked(index int, syntacticType *dag.Type) (*dag.Node, error) {
	if index < 0 || index >= len(s.solIndexToFunc) {
		// spec.md §4.7 step 1: unconstrained index, no recorded program —
		// stand in with a fresh enumerated placeholder of the right type.
		// A real enumerator (SygusTermDb) is an out-of-scope external
		// collaborator (spec.md §1); this is only a typed hole.
		return s.arena.Fresh(dag.SKOLEM, syntacticType, "unconstrained"), nil
	}
	f := s.solIndexToFunc[index]

	idx := make([]int, len(s.inst))
	for i := range idx {
		idx[i] = i
	}

	weakenings := map[int]*dag.Node{}
	if (s.cfg.SolMinCore || s.cfg.SolMinInst) && s.unsatCore != nil {
		active, weak, ok := s.unsatCore.GetUnsatCoreLemmas()
		if ok {
			idx = restrictOrdered(idx, active)
			weakenings = weak
		}
	}

	if len(idx) == 0 {
		return s.arena.Fresh(dag.SKOLEM, syntacticType, "unconstrained"), nil
	}

	m := len(s.part.StateVars())
	valueAt := func(k int) *dag.Node { return s.inst[k][m+s.progToSolIndex[f]] }
	// condAt returns lemmasProduced[k] as recorded, not re-negated: spec.md
	// §4.7 step 4 writes ITE(¬cond_k, value_k, tail) over a cond_k that is
	// itself already "the negated instantiated conjunct" (§4.6's verification
	// lemma), so the spec's two negations cancel. condAt below is that
	// already-negated lemma, used un-negated here.
	condAt := func(k int) *dag.Node {
		if w, ok := weakenings[k]; ok {
			return w
		}
		return s.lemmasProduced[k]
	}

	// Constant-first stable sort (spec.md §4.7 step 3): a leading constant
	// branch yields a cheaper head test.
	sort.SliceStable(idx, func(i, j int) bool {
		ci := valueAt(idx[i]).IsConst()
		cj := valueAt(idx[j]).IsConst()
		return ci && !cj
	})

	last := idx[len(idx)-1]
	result := valueAt(last)
	for k := len(idx) - 2; k >= 0; k-- {
		entry := idx[k]
		// ITE(condAt(entry), ...): condAt is already negated (see condAt's
		// doc comment above), collapsing spec.md §4.7's double negation.
		result = s.arena.Mk(dag.ITE, syntacticType, condAt(entry), valueAt(entry), result)
	}

	// Substitute the problem's state skolems a_1..a_m back to the
	// partition's canonical bound-variable list (spec.md §4.7 step 5).
	back := make(map[*dag.Node]*dag.Node, len(s.stateSkolems))
	for sv, a := range s.stateSkolems {
		back[a] = sv
	}
	result = s.arena.Substitute(result, back)

	// Spec.md §4.7 step 6 (replacing total int-div/mod variants with
	// partial ones) is a no-op here: this reference TermGraph models no
	// division/modulus operator kind for evalGround/foldArithOrComparison
	// to retarget, so there is nothing to rewrite without a host-specific
	// operator table.
	return result, nil
}

// restrictOrdered returns the subsequence of idx whose elements also
// appear in active, preserving idx's original order (spec.md §4.7 step 2's
// "ordering-sensitive folding... preserve order among retained indices").
func restrictOrdered(idx []int, active []int) []int {
	keep := make(map[int]struct{}, len(active))
	for _, a := range active {
		keep[a] = struct{}{}
	}
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		if _, ok := keep[i]; ok {
			out = append(out, i)
		}
	}
	return out
}
