package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaHashConsing(t *testing.T) {
	a := NewArena()

	s := a.Fresh(BOUND_VAR, Int, "s")

	f := a.Fresh(SKOLEM, Function([]*Type{Int}, Int), "f")
	app1 := a.Apply(f, Int, s)
	app2 := a.Apply(f, Int, s)

	assert.True(t, app1.SameAs(app2), "identical operator/args/type must hash-cons to the same node")

	other := a.Fresh(BOUND_VAR, Int, "other")
	app3 := a.Apply(f, Int, other)
	assert.False(t, app1.SameAs(app3), "different arguments must not be confused")
}

func TestFreshNeverConses(t *testing.T) {
	a := NewArena()
	v1 := a.Fresh(BOUND_VAR, Int, "x")
	v2 := a.Fresh(BOUND_VAR, Int, "x")
	assert.False(t, v1.SameAs(v2), "two Fresh calls must mint distinct identities even with the same name")
	assert.NotEqual(t, v1.ID(), v2.ID())
}

func TestFreeBoundVars(t *testing.T) {
	a := NewArena()
	x := a.Fresh(BOUND_VAR, Int, "x")
	y := a.Fresh(BOUND_VAR, Int, "y")

	body := a.Mk(EQ, Bool, x, y)
	free := FreeBoundVars(body)
	require.Len(t, free, 2)

	quantified := a.Mk(FORALL, Bool, x, body)
	freeUnderBinder := FreeBoundVars(quantified)
	require.Len(t, freeUnderBinder, 1)
	assert.True(t, freeUnderBinder[0].SameAs(y))
}

func TestNegatePushesOneLevel(t *testing.T) {
	a := NewArena()
	p := a.Fresh(VARIABLE, Bool, "p")
	q := a.Fresh(VARIABLE, Bool, "q")

	and := a.Mk(AND, Bool, p, q)
	negated := a.Negate(and)
	require.Equal(t, OR, negated.Kind())
	require.Len(t, negated.Children(), 2)
	assert.Equal(t, NOT, negated.Children()[0].Kind())
}

func TestConjunctiveLayersFlattensAndPushesNegation(t *testing.T) {
	a := NewArena()
	p := a.Fresh(VARIABLE, Bool, "p")
	q := a.Fresh(VARIABLE, Bool, "q")
	r := a.Fresh(VARIABLE, Bool, "r")

	// ¬(p ∨ q) ∧ r  ==  ¬p ∧ ¬q ∧ r  after pushing negation
	or := a.Mk(OR, Bool, p, q)
	notOr := a.Mk(NOT, Bool, or)
	conj := a.Mk(AND, Bool, notOr, r)

	layers := a.ConjunctiveLayers(conj)
	require.Len(t, layers, 3)
}

func TestBetaReduce(t *testing.T) {
	a := NewArena()
	x := a.Fresh(BOUND_VAR, Int, "x")
	lambda := a.Mk(LAMBDA, Function([]*Type{Int}, Int), x, x)

	five := a.Const(5, Int)
	reduced := a.BetaReduce(lambda, []*Node{five})
	assert.True(t, reduced.SameAs(five))
}

func TestSubstituteIsCaptureAvoiding(t *testing.T) {
	a := NewArena()
	x := a.Fresh(BOUND_VAR, Int, "x")
	y := a.Fresh(BOUND_VAR, Int, "y")

	// forall x. x = y ; substitute y -> x (outer) must not capture the
	// inner bound x.
	body := a.Mk(EQ, Bool, x, y)
	forall := a.Mk(FORALL, Bool, x, body)

	outerX := a.Fresh(BOUND_VAR, Int, "x_outer")
	result := a.Substitute(forall, map[*Node]*Node{y: outerX})

	require.Equal(t, FORALL, result.Kind())
	innerBody := result.Children()[1]
	// the inner x must remain exactly the original bound x, unaffected.
	assert.True(t, innerBody.Children()[0].SameAs(x))
	assert.True(t, innerBody.Children()[1].SameAs(outerX))
}
