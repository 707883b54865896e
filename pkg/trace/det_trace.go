// Package trace implements DetTrace / DetTraceTrie (spec.md §4.2): a record
// of one deterministic execution, used by pkg/transition's auto-unfold
// driver to discover trivial inductive invariants. The backing structure
// is the same prefix-trie shape as pkg/dedup's MatchTrie — keyed first by
// location, then by successive value components — grounded on the
// teacher's tabling.go trie discipline (AnswerTrieNode keyed by successive
// (varID, valueHash) pairs) applied here to (loc, vals) tuples instead of
// answer substitutions.
package trace

import (
	"sync"

	"github.com/gitrdm/sivsynth/pkg/dag"
)

// Trie is the prefix tree backing one or more DetTraces: a path is keyed
// first by the visited location, then by each value component in order.
type Trie struct {
	mu   sync.Mutex
	root *trieNode
}

type trieNode struct {
	children map[any]*trieNode
	terminal bool
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[any]*trieNode)}
}

// NewTrie creates an empty trace trie.
func NewTrie() *Trie {
	return &Trie{root: newTrieNode()}
}

// insert adds (loc, vals) to the trie. It returns true iff the path is new.
func (tr *Trie) insert(loc string, vals []*dag.Node) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	cur := tr.root
	step := func(key any) {
		next, ok := cur.children[key]
		if !ok {
			next = newTrieNode()
			cur.children[key] = next
		}
		cur = next
	}
	step(loc)
	for _, v := range vals {
		step(v)
	}
	if cur.terminal {
		return false
	}
	cur.terminal = true
	return true
}

// DetTrace represents one deterministic execution. It holds the current
// value vector and records every (loc, vals) tuple visited so far via its
// backing Trie.
type DetTrace struct {
	trie    *Trie
	curr    []*dag.Node
	visited []visitedEntry
}

type visitedEntry struct {
	loc  string
	vals []*dag.Node
}

// New creates a DetTrace backed by a fresh Trie.
func New() *DetTrace {
	return &DetTrace{trie: NewTrie()}
}

// NewWithTrie creates a DetTrace sharing the given Trie with other traces,
// so that loop detection is scoped to the trie's lifetime rather than a
// single trace (multiple traces over the same (pre,trans,post) triple can
// share one trie to detect cross-trace repetition).
func NewWithTrie(tr *Trie) *DetTrace {
	return &DetTrace{trie: tr}
}

// Curr returns the current value vector.
func (dt *DetTrace) Curr() []*dag.Node { return dt.curr }

// Increment inserts (loc, vals) into the underlying trie. If already
// present, it returns false (a loop was detected) and curr is left
// unchanged; otherwise it updates curr and returns true.
func (dt *DetTrace) Increment(loc string, vals []*dag.Node) bool {
	if !dt.trie.insert(loc, vals) {
		return false
	}
	dt.curr = vals
	dt.visited = append(dt.visited, visitedEntry{loc: loc, vals: append([]*dag.Node{}, vals...)})
	return true
}

// Visited returns the number of (loc, vals) tuples recorded so far.
func (dt *DetTrace) Visited() int { return len(dt.visited) }

// ConstructFormula returns a DNF formula over vars expressing the finite
// set of visited value tuples as equalities. An empty trace returns the
// Bool constant true (spec.md §4.2).
func (dt *DetTrace) ConstructFormula(a *dag.Arena, vars []*dag.Node) *dag.Node {
	if len(dt.visited) == 0 {
		return a.Const(true, dag.Bool)
	}
	disjuncts := make([]*dag.Node, 0, len(dt.visited))
	for _, entry := range dt.visited {
		if len(entry.vals) != len(vars) {
			panic("trace: visited tuple arity does not match vars")
		}
		eqs := make([]*dag.Node, len(vars))
		for i, v := range vars {
			eqs[i] = a.Mk(dag.EQ, dag.Bool, v, entry.vals[i])
		}
		disjuncts = append(disjuncts, a.And(eqs...))
	}
	return a.Or(disjuncts...)
}
