package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/sivsynth/pkg/dag"
)

func TestDetTraceLoopDetection(t *testing.T) {
	a := dag.NewArena()
	zero := a.Const(0, dag.Int)
	one := a.Const(1, dag.Int)

	dt := New()
	assert.True(t, dt.Increment("loc", []*dag.Node{zero}))
	assert.True(t, dt.Increment("loc", []*dag.Node{one}))
	assert.False(t, dt.Increment("loc", []*dag.Node{zero}), "repeating a (loc, vals) tuple must be detected as a loop")
}

func TestDetTraceEmptyFormulaIsTrue(t *testing.T) {
	a := dag.NewArena()
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")

	dt := New()
	formula := dt.ConstructFormula(a, []*dag.Node{x})
	require.True(t, formula.IsConst())
	assert.Equal(t, true, formula.Value())
}

func TestDetTraceConstructFormulaScenario4(t *testing.T) {
	// spec.md §8 scenario 4: (0,0), (1,1), (2,2), (3,3) visited before the
	// trans guard falsifies at x=3.
	a := dag.NewArena()
	x := a.Fresh(dag.BOUND_VAR, dag.Int, "x")
	y := a.Fresh(dag.BOUND_VAR, dag.Int, "y")

	dt := New()
	for i := 0; i < 4; i++ {
		xi := a.Const(i, dag.Int)
		yi := a.Const(i, dag.Int)
		require.True(t, dt.Increment("loc", []*dag.Node{xi, yi}))
	}

	formula := dt.ConstructFormula(a, []*dag.Node{x, y})
	require.Equal(t, dag.OR, formula.Kind())
	assert.Len(t, formula.Children(), 4)
}
