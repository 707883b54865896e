// Package dedup implements MatchTrie (spec.md §4.1): a trie that
// deduplicates instantiation tuples keyed by a conjecture and a
// substitution vector. It is grounded on the teacher's AnswerTrie
// (pkg/minikanren/tabling.go) — a trie keyed by a sorted path of
// (position, value-hash) pairs, leaf-marked on completion, reporting
// novelty on first completion of a path. This package generalizes that
// shape one level: a MatchTrie first indexes by conjecture identity, then
// delegates to a per-conjecture answer trie, mirroring how the teacher's
// SubgoalTable maps a CallPattern to its own AnswerTrie.
package dedup

import (
	"sync"

	"github.com/gitrdm/sivsynth/pkg/dag"
)

// MatchTrie deduplicates substitution vectors per conjecture. It is safe
// for concurrent use; Add is the only mutator.
//
// Contract (spec.md §4.1): idempotent insert, O(|subs|) amortized lookup,
// no false positives (duplicates are always detected), no false negatives.
type MatchTrie struct {
	mu     sync.Mutex
	tables map[*dag.Node]*trieNode
}

// New creates an empty MatchTrie.
func New() *MatchTrie {
	return &MatchTrie{tables: make(map[*dag.Node]*trieNode)}
}

// trieNode is a node in the per-conjecture path trie, keyed by successive
// substitution-vector positions. Order of the substitution is significant
// (spec.md §4.1): the key at depth i is (i, subs[i]) so the same set of
// terms in a different order is a distinct path.
type trieNode struct {
	children map[*dag.Node]*trieNode
	terminal bool
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[*dag.Node]*trieNode)}
}

// Add inserts subs keyed by conjecture. It returns true iff the tuple was
// new for that conjecture.
func (m *MatchTrie) Add(conjecture *dag.Node, subs []*dag.Node) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	root, ok := m.tables[conjecture]
	if !ok {
		root = newTrieNode()
		m.tables[conjecture] = root
	}

	cur := root
	for _, s := range subs {
		next, ok := cur.children[s]
		if !ok {
			next = newTrieNode()
			cur.children[s] = next
		}
		cur = next
	}
	if cur.terminal {
		return false
	}
	cur.terminal = true
	return true
}

// ContextScoped wraps a MatchTrie with an undo log so inserts made within a
// decision level can be rolled back on backtrack (spec.md §4.1's
// "context-scoped variant"; spec.md §9's "scoped state under incremental
// solving" design note). It mirrors the copy-on-write generation counter
// used by LocalConstraintStoreImpl (pkg/minikanren/local_constraint_store.go)
// but implemented as an explicit insert-undo log rather than structural
// copying, since match-trie paths are cheap to record and replay.
type ContextScoped struct {
	mu     sync.Mutex
	inner  *MatchTrie
	levels [][]insertion
}

type insertion struct {
	conjecture *dag.Node
	subs       []*dag.Node
}

// NewContextScoped creates a context-scoped MatchTrie with no open level.
// Push must be called before the first Add.
func NewContextScoped() *ContextScoped {
	return &ContextScoped{inner: New()}
}

// Push opens a new decision level. Inserts made after Push and before the
// matching Pop are undone by that Pop.
func (c *ContextScoped) Push() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels = append(c.levels, nil)
}

// Pop undoes every insertion made since the most recent Push by rebuilding
// the underlying trie without them. Popping with no open level is a no-op.
func (c *ContextScoped) Pop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.levels) == 0 {
		return
	}
	undone := c.levels[len(c.levels)-1]
	c.levels = c.levels[:len(c.levels)-1]
	if len(undone) == 0 {
		return
	}

	// Rebuild from the surviving insertion history rather than trying to
	// delete individual trie paths in place: simpler to reason about and
	// still amortized O(total surviving inserts), which in incremental
	// solving is bounded by the decision depth actually explored.
	var surviving []insertion
	for _, level := range c.levels {
		surviving = append(surviving, level...)
	}
	c.inner = New()
	for _, ins := range surviving {
		c.inner.Add(ins.conjecture, ins.subs)
	}
}

// Add inserts subs keyed by conjecture at the current decision level.
func (c *ContextScoped) Add(conjecture *dag.Node, subs []*dag.Node) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	isNew := c.inner.Add(conjecture, subs)
	if isNew && len(c.levels) > 0 {
		top := len(c.levels) - 1
		c.levels[top] = append(c.levels[top], insertion{conjecture: conjecture, subs: append([]*dag.Node{}, subs...)})
	}
	return isNew
}

// Depth reports the number of currently open decision levels.
func (c *ContextScoped) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.levels)
}
