package transition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/sivsynth/pkg/dag"
	"github.com/gitrdm/sivsynth/pkg/trace"
)

// plusSym builds a "+" theory operator the way evalGround and
// foldArithOrComparison expect it: a skolem literally named "+", to be
// used as the operator of an APPLY_UF.
func plusSym(a *dag.Arena) *dag.Node {
	return a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int, dag.Int}, dag.Int), "+")
}

// TestTransitionClassification covers spec.md §8 scenario 3: a single PRE
// clause x=0 fixing the invariant's only state variable.
func TestTransitionClassification(t *testing.T) {
	a := dag.NewArena()
	inv := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int}, dag.Bool), "inv")
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")

	invX := a.Apply(inv, dag.Bool, x)
	zero := a.Const(0, dag.Int)
	preLit := a.Mk(dag.EQ, dag.Bool, x, zero)
	// pre(x) => inv(x), i.e. ¬pre(x) ∨ inv(x)
	preClause := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, preLit), invX)

	inf := New(a, inv, []*dag.Node{x})
	require.NoError(t, inf.Process(preClause))
	require.True(t, inf.Complete())

	pre := inf.Get(Pre)
	require.Equal(t, dag.EQ, pre.Kind())
	assert.Equal(t, preLit.String(), pre.String())
}

// TestTransitionRejectsSecondFunction covers spec.md §4.4's "references a
// second function" rejection rule.
func TestTransitionRejectsSecondFunction(t *testing.T) {
	a := dag.NewArena()
	inv := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int}, dag.Bool), "inv")
	other := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int}, dag.Bool), "other")
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")

	invX := a.Apply(inv, dag.Bool, x)
	otherX := a.Apply(other, dag.Bool, x)
	clause := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, invX), otherX)

	inf := New(a, inv, []*dag.Node{x})
	require.NoError(t, inf.Process(clause))
	assert.False(t, inf.Complete())
	require.Error(t, inf.Diagnostics())
}

// TestAutoUnfoldScenario4 covers spec.md §8 scenario 4: pre = (x=0 ∧ y=0),
// trans = (x'=x+1 ∧ y'=y+1 ∧ x<3), post = (x=y). Forward unfolding visits
// (0,0),(1,1),(2,2),(3,3) and then the trans guard falsifies at x=3.
func TestAutoUnfoldScenario4(t *testing.T) {
	a := dag.NewArena()
	inv := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int, dag.Int}, dag.Bool), "inv")
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")
	y := a.Fresh(dag.BOUND_VAR, dag.Int, "y")
	xNext := a.Fresh(dag.BOUND_VAR, dag.Int, "x_next")
	yNext := a.Fresh(dag.BOUND_VAR, dag.Int, "y_next")
	three := a.Const(3, dag.Int)
	lt := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int, dag.Int}, dag.Bool), "<")
	plus := plusSym(a)
	one := a.Const(1, dag.Int)

	// pre(x,y) => inv(x,y)
	invXY := a.Apply(inv, dag.Bool, x, y)
	preLit := a.Mk(dag.AND, dag.Bool,
		a.Mk(dag.EQ, dag.Bool, x, a.Const(0, dag.Int)),
		a.Mk(dag.EQ, dag.Bool, y, a.Const(0, dag.Int)),
	)
	preClause := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, preLit), invXY)

	// inv(x,y) ∧ trans(x,y,x',y') => inv(x',y')
	invXYNext := a.Apply(inv, dag.Bool, xNext, yNext)
	guard := a.Mk(dag.AND, dag.Bool,
		a.Mk(dag.EQ, dag.Bool, xNext, a.Apply(plus, dag.Int, x, one)),
		a.Mk(dag.EQ, dag.Bool, yNext, a.Apply(plus, dag.Int, y, one)),
		a.Apply(lt, dag.Bool, x, three),
	)
	transClause := a.Mk(dag.OR, dag.Bool,
		a.Mk(dag.NOT, dag.Bool, invXY),
		a.Mk(dag.NOT, dag.Bool, guard),
		invXYNext,
	)

	// inv(x,y) => x=y
	postLit := a.Mk(dag.EQ, dag.Bool, x, y)
	postClause := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, invXY), postLit)

	formula := a.And(preClause, transClause, postClause)

	inf := New(a, inv, []*dag.Node{x, y})
	require.NoError(t, inf.Process(formula))
	require.True(t, inf.Complete())

	status, dnf := inf.AutoUnfold(true)
	assert.Equal(t, Terminated, status, "the trans guard falsifies at x=3 with no counterexample observed")
	require.Equal(t, dag.OR, dnf.Kind())
	assert.Len(t, dnf.Children(), 4, "(0,0),(1,1),(2,2),(3,3) are visited before termination")
}

// TestIncrementTraceCounterexample exercises a post guard that is violated
// immediately, so IncrementTrace must report Counterexample without ever
// consulting the transition clause.
func TestIncrementTraceCounterexample(t *testing.T) {
	a := dag.NewArena()
	inv := a.Fresh(dag.SKOLEM, dag.Function([]*dag.Type{dag.Int}, dag.Bool), "inv")
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")
	invX := a.Apply(inv, dag.Bool, x)

	preLit := a.Mk(dag.EQ, dag.Bool, x, a.Const(0, dag.Int))
	preClause := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, preLit), invX)

	// inv(x) => false: post is unconditionally violated.
	postClause := a.Mk(dag.OR, dag.Bool, a.Mk(dag.NOT, dag.Bool, invX), a.Const(false, dag.Bool))

	inf := New(a, inv, []*dag.Node{x})
	require.NoError(t, inf.Process(a.And(preClause, postClause)))

	dt := trace.New()
	require.Equal(t, 0, inf.InitializeTrace(dt, true))
	assert.Equal(t, Counterexample, inf.IncrementTrace(dt, true))
}
