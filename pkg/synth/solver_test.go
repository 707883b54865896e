package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/sivsynth/internal/config"
	"github.com/gitrdm/sivsynth/pkg/dag"
	"github.com/gitrdm/sivsynth/pkg/external"
	"github.com/gitrdm/sivsynth/pkg/external/fake"
)

// ge builds an opaque "≥" application the way pkg/partition's own tests do:
// an APPLY_UF over a theory symbol, never special to this engine.
func ge(a *dag.Arena, geSym, lhs, rhs *dag.Node) *dag.Node {
	return a.Apply(geSym, dag.Bool, lhs, rhs)
}

// pureSIConjecture builds spec.md §8 scenario 1's conjecture:
// ∀f.∀x. f(x) ≥ x ∧ f(x) ≥ 0, returned as a FORALL node over x whose body
// already has f applied, with geSym as the ≥ skolem and f the synthesis
// function.
func pureSIConjecture(a *dag.Arena) (conjecture, f, x *dag.Node) {
	geSym := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int, dag.Int}, dag.Bool), "ge")
	f = a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int}, dag.Int), "f")
	x = a.Fresh(dag.BOUND_VAR, dag.Int, "x")

	fx := a.Apply(f, dag.Int, x)
	zero := a.Const(0, dag.Int)
	body := a.Mk(dag.AND, dag.Bool, ge(a, geSym, fx, x), ge(a, geSym, fx, zero))
	conjecture = a.Mk(dag.FORALL, dag.Bool, x, body)
	return conjecture, f, x
}

func TestInitializeFullSIEmitsGuardedLemma(t *testing.T) {
	a := dag.NewArena()
	conjecture, f, _ := pureSIConjecture(a)

	val := fake.NewValuation()
	out := fake.NewOutputChannel()
	s := New(a, config.Default(), val, out)

	require.NoError(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))
	assert.True(t, s.IsSingleInvocation())
	require.Len(t, out.Lemmas, 1, "fully-SI Initialize emits exactly one guarded lemma")
	assert.Equal(t, dag.OR, out.Lemmas[0].Kind())
}

func TestInitializeTwiceIsAPreconditionViolation(t *testing.T) {
	a := dag.NewArena()
	conjecture, f, _ := pureSIConjecture(a)

	s := New(a, config.Default(), fake.NewValuation(), fake.NewOutputChannel())
	require.NoError(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))
	assert.Error(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))
}

// TestCheckNormalDedupAndSolution drives the CEGIS loop scenario from
// spec.md §8 scenario 6: instantiations (x=0 -> 0), (x=1 -> 1), (_ -> x)
// recorded in order should yield ite(x=0, 0, ite(x=1, 1, x)).
func TestCheckNormalDedupAndSolution(t *testing.T) {
	a := dag.NewArena()
	conjecture, f, x := pureSIConjecture(a)

	val := fake.NewValuation()
	out := fake.NewOutputChannel()
	s := New(a, config.Default(), val, out)
	require.NoError(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))

	zero := a.Const(0, dag.Int)
	one := a.Const(1, dag.Int)

	subsFor := func(xVal, fVal *dag.Node) []*dag.Node { return []*dag.Node{xVal, fVal} }

	ok := s.DoAddInstantiation(context.Background(), subsFor(zero, zero))
	require.True(t, ok)
	ok = s.DoAddInstantiation(context.Background(), subsFor(one, one))
	require.True(t, ok)
	ok = s.DoAddInstantiation(context.Background(), subsFor(x, x))
	require.True(t, ok)

	// Repeating the first tuple must be detected as a duplicate (spec.md
	// §8 invariant 3 / scenario 5).
	dup := s.DoAddInstantiation(context.Background(), subsFor(zero, zero))
	assert.False(t, dup)

	stats := s.Stats()
	assert.Equal(t, 3, stats.InstantiationsAccepted)
	assert.Equal(t, 1, stats.InstantiationsDeduped)

	sol, err := s.GetSolution(context.Background(), 0, dag.Int)
	require.NoError(t, err)
	require.Equal(t, dag.ITE, sol.Kind())

	// Constant-first stable sort (spec.md §4.7 step 3): the two constant
	// branches (0, 1) must come before the variable branch (x), in the
	// order they were recorded.
	assert.True(t, sol.Children()[1].IsConst())
	assert.Equal(t, 0, sol.Children()[1].Value())

	inner := sol.Children()[2]
	require.Equal(t, dag.ITE, inner.Kind())
	assert.True(t, inner.Children()[1].IsConst())
	assert.Equal(t, 1, inner.Children()[1].Value())
	assert.Equal(t, x, inner.Children()[2], "the fallback branch is the unconstrained x tuple")
}

// TestDoAddInstantiationRejectsWrongArity covers the substitution-vector
// arity contract this package documents for DoAddInstantiation.
func TestDoAddInstantiationRejectsWrongArity(t *testing.T) {
	a := dag.NewArena()
	conjecture, f, _ := pureSIConjecture(a)

	s := New(a, config.Default(), fake.NewValuation(), fake.NewOutputChannel())
	require.NoError(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))

	ok := s.DoAddInstantiation(context.Background(), []*dag.Node{a.Const(0, dag.Int)})
	assert.False(t, ok, "a substitution vector missing the function-value component must be rejected")
}

func TestIsEligibleForInstantiationAllowsOwnArgSkolemsOnly(t *testing.T) {
	a := dag.NewArena()
	conjecture, f, _ := pureSIConjecture(a)

	s := New(a, config.Default(), fake.NewValuation(), fake.NewOutputChannel())
	require.NoError(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))

	freeVar := a.Fresh(dag.VARIABLE, dag.Int, "free")
	assert.True(t, s.IsEligibleForInstantiation(freeVar), "non-skolem terms are always eligible")

	otherSkolem := a.Fresh(dag.SKOLEM, dag.Int, "other")
	assert.False(t, s.IsEligibleForInstantiation(otherSkolem), "a skolem foreign to this engine is ineligible")
}

// TestEntailmentExhaustionIsFatal covers spec.md §4.6 substate 2 and §9's
// resolved open question: an exhausted entailment oracle in partial-SI
// mode surfaces ErrEntailmentIncomplete rather than a silent (nil, false, nil).
func TestEntailmentExhaustionIsFatal(t *testing.T) {
	a := dag.NewArena()
	// A non-SI conjecture: f(x) = f(y) => x = y.
	f := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int}, dag.Int), "f")
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")
	y := a.Fresh(dag.BOUND_VAR, dag.Int, "y")
	fx := a.Apply(f, dag.Int, x)
	fy := a.Apply(f, dag.Int, y)
	premise := a.Mk(dag.EQ, dag.Bool, fx, fy)
	conclusion := a.Mk(dag.EQ, dag.Bool, x, y)
	body := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, premise), conclusion)
	conjecture := a.Mk(dag.FORALL, dag.Bool, x, y, body)

	oracle := fake.NewEntailmentOracle(nil) // exhausted immediately
	s := New(a, config.New(config.WithSIPartial(true)), fake.NewValuation(), fake.NewOutputChannel(),
		WithEntailmentOracle(oracle))
	require.NoError(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))
	assert.False(t, s.IsSingleInvocation())

	_, _, err := s.Check(context.Background())
	assert.ErrorIs(t, err, ErrEntailmentIncomplete)
}

// TestOptionDrivenAbort covers spec.md §7's "Option-driven abort" path.
func TestOptionDrivenAbort(t *testing.T) {
	a := dag.NewArena()
	f := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int}, dag.Int), "f")
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")
	y := a.Fresh(dag.BOUND_VAR, dag.Int, "y")
	fx := a.Apply(f, dag.Int, x)
	fy := a.Apply(f, dag.Int, y)
	premise := a.Mk(dag.EQ, dag.Bool, fx, fy)
	conclusion := a.Mk(dag.EQ, dag.Bool, x, y)
	body := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, premise), conclusion)
	conjecture := a.Mk(dag.FORALL, dag.Bool, x, y, body)

	cfg := config.New(config.WithSIMode(config.SIAllAbort))
	s := New(a, cfg, fake.NewValuation(), fake.NewOutputChannel())
	err := s.Initialize(context.Background(), conjecture, []*dag.Node{f})
	assert.ErrorIs(t, err, ErrAborted)
	assert.False(t, s.NeedsCheck())
}

// TestCandidateRefutedBuildsVerificationLemma exercises spec.md §4.6
// substate 1 end to end against a partial-SI conjecture whose NSI part is
// trivially satisfied once a constant solution is plugged in.
func TestCandidateRefutedBuildsVerificationLemma(t *testing.T) {
	a := dag.NewArena()
	f := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int}, dag.Int), "f")
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")
	y := a.Fresh(dag.BOUND_VAR, dag.Int, "y")
	fx := a.Apply(f, dag.Int, x)
	fy := a.Apply(f, dag.Int, y)
	premise := a.Mk(dag.EQ, dag.Bool, fx, fy)
	conclusion := a.Mk(dag.EQ, dag.Bool, x, y)
	body := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, premise), conclusion)
	conjecture := a.Mk(dag.FORALL, dag.Bool, x, y, body)

	val := fake.NewValuation()
	out := fake.NewOutputChannel()
	oracle := fake.NewEntailmentOracle([]*dag.Node{conclusion})
	s := New(a, config.New(config.WithSIPartial(true)), val, out, WithEntailmentOracle(oracle))
	require.NoError(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))

	// Substate 2: fetch the next SI candidate, minting G_ns.
	_, progress, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, progress)

	lit, err := val.EnsureLiteral(s.nsGuard)
	require.NoError(t, err)
	val.Assign(lit, false)

	lemmas, progress, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, progress)
	require.Len(t, lemmas, 1, "candidateRefuted emits exactly one verification lemma")

	statsAfter := s.Stats()
	assert.Equal(t, 0, statsAfter.Rounds, "resetEpochLocked starts a fresh epoch's round counter")
}

func TestUnsatCoreRestrictsSolutionIndices(t *testing.T) {
	a := dag.NewArena()
	conjecture, f, x := pureSIConjecture(a)

	oracle := &fake.UnsatCoreOracle{Active: []int{1}, OK: true}
	cfg := config.New(config.WithSolMinCore(true))
	s := New(a, cfg, fake.NewValuation(), fake.NewOutputChannel(), WithUnsatCoreOracle(oracle))
	require.NoError(t, s.Initialize(context.Background(), conjecture, []*dag.Node{f}))

	zero := a.Const(0, dag.Int)
	one := a.Const(1, dag.Int)
	require.True(t, s.DoAddInstantiation(context.Background(), []*dag.Node{zero, zero}))
	require.True(t, s.DoAddInstantiation(context.Background(), []*dag.Node{one, one}))
	require.True(t, s.DoAddInstantiation(context.Background(), []*dag.Node{x, x}))

	sol, err := s.GetSolution(context.Background(), 0, dag.Int)
	require.NoError(t, err)
	// Only index 1 survives the unsat core: the solution degenerates to
	// that single recorded value, no ITE needed.
	assert.True(t, sol.IsConst())
	assert.Equal(t, 1, sol.Value())
}

var _ external.InstantiatorCallback = (*Solver)(nil)
