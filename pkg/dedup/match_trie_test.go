package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gitrdm/sivsynth/pkg/dag"
)

func TestMatchTrieDedup(t *testing.T) {
	a := dag.NewArena()
	q := a.Fresh(dag.VARIABLE, dag.Bool, "q")
	five := a.Const(5, dag.Int)

	mt := New()
	assert.True(t, mt.Add(q, []*dag.Node{five}), "first insertion must be new")
	assert.False(t, mt.Add(q, []*dag.Node{five}), "second insertion of the same tuple must be a duplicate")
}

func TestMatchTrieOrderSensitive(t *testing.T) {
	a := dag.NewArena()
	q := a.Fresh(dag.VARIABLE, dag.Bool, "q")
	x := a.Const(1, dag.Int)
	y := a.Const(2, dag.Int)

	mt := New()
	assert.True(t, mt.Add(q, []*dag.Node{x, y}))
	assert.True(t, mt.Add(q, []*dag.Node{y, x}), "reordered substitution vector is a distinct tuple")
}

func TestMatchTrieScopedPerConjecture(t *testing.T) {
	a := dag.NewArena()
	q1 := a.Fresh(dag.VARIABLE, dag.Bool, "q1")
	q2 := a.Fresh(dag.VARIABLE, dag.Bool, "q2")
	v := a.Const(1, dag.Int)

	mt := New()
	assert.True(t, mt.Add(q1, []*dag.Node{v}))
	assert.True(t, mt.Add(q2, []*dag.Node{v}), "same tuple under a different conjecture is not a duplicate")
}

func TestContextScopedUndoesOnPop(t *testing.T) {
	a := dag.NewArena()
	q := a.Fresh(dag.VARIABLE, dag.Bool, "q")
	v := a.Const(1, dag.Int)

	cs := NewContextScoped()
	cs.Push()
	assert.True(t, cs.Add(q, []*dag.Node{v}))
	assert.Equal(t, 1, cs.Depth())
	cs.Pop()
	assert.Equal(t, 0, cs.Depth())

	cs.Push()
	assert.True(t, cs.Add(q, []*dag.Node{v}), "undone insertion must be re-insertable as new")
}

func TestContextScopedPreservesOuterLevel(t *testing.T) {
	a := dag.NewArena()
	q := a.Fresh(dag.VARIABLE, dag.Bool, "q")
	outer := a.Const(1, dag.Int)
	inner := a.Const(2, dag.Int)

	cs := NewContextScoped()
	cs.Push()
	assert.True(t, cs.Add(q, []*dag.Node{outer}))

	cs.Push()
	assert.True(t, cs.Add(q, []*dag.Node{inner}))
	cs.Pop()

	// outer insertion must still be recorded.
	assert.False(t, cs.Add(q, []*dag.Node{outer}))
	// inner insertion was rolled back and is insertable again.
	assert.True(t, cs.Add(q, []*dag.Node{inner}))
}
