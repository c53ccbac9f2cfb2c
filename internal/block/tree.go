package block

import (
	"fmt"
	"sort"

	"github.com/starford/ansuz/internal/apperr"
)

// EventKind classifies how a mutation batch affected a block.
type EventKind uint8

const (
	EventCreated EventKind = iota
	EventUpdated
	EventRemoved
)

func (e EventKind) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// Event reports one block affected by a committed mutation batch. Block holds
// the committed state, or the last state before deletion for removed events.
type Event struct {
	Kind  EventKind
	ID    string
	Block Block
}

type node struct {
	block    Block
	parent   string
	children []string
}

func (n *node) clone() *node {
	c := *n
	c.children = append([]string(nil), n.children...)
	return &c
}

// Tree is a single-rooted, acyclic, ordered document tree. Every block has
// exactly one parent except the root. Tree is not safe for concurrent use;
// the owning document serializes access to it.
type Tree struct {
	root  string
	nodes map[string]*node
}

// NewTree returns a tree holding only a fresh root block.
func NewTree() *Tree {
	return NewTreeWithRoot(New(KindRoot))
}

// NewTreeWithRoot returns a tree rooted at b. The kind is forced to KindRoot
// and a missing id is filled in.
func NewTreeWithRoot(b Block) *Tree {
	if b.ID == "" {
		b.ID = NewID()
	}
	b.Kind = KindRoot
	return &Tree{
		root:  b.ID,
		nodes: map[string]*node{b.ID: {block: b}},
	}
}

// RootID returns the id of the root block.
func (t *Tree) RootID() string { return t.root }

// Len returns the number of blocks in the tree, root included.
func (t *Tree) Len() int { return len(t.nodes) }

// Get returns the block with the given id.
func (t *Tree) Get(id string) (Block, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Block{}, false
	}
	return n.block, true
}

// Parent returns the parent id of a block. The root has no parent.
func (t *Tree) Parent(id string) (string, bool) {
	n, ok := t.nodes[id]
	if !ok || n.parent == "" {
		return "", false
	}
	return n.parent, true
}

// ChildIDs returns the ordered child ids of a block.
func (t *Tree) ChildIDs(id string) []string {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.children...)
}

// Children returns the ordered child blocks of a block.
func (t *Tree) Children(id string) []Block {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]Block, 0, len(n.children))
	for _, cid := range n.children {
		out = append(out, t.nodes[cid].block)
	}
	return out
}

// HasChildOfKind reports whether any direct child of id has the given kind.
func (t *Tree) HasChildOfKind(id string, k Kind) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	for _, cid := range n.children {
		if t.nodes[cid].block.Kind == k {
			return true
		}
	}
	return false
}

// Walk visits every block in document order, root first, passing the nesting
// depth (root is 0). A non-nil error from fn stops the walk and is returned.
func (t *Tree) Walk(fn func(b Block, depth int) error) error {
	return t.walk(t.root, 0, fn)
}

func (t *Tree) walk(id string, depth int, fn func(Block, int) error) error {
	n := t.nodes[id]
	if err := fn(n.block, depth); err != nil {
		return err
	}
	for _, cid := range n.children {
		if err := t.walk(cid, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) isAncestor(anc, id string) bool {
	for cur := t.nodes[id]; cur != nil && cur.parent != ""; cur = t.nodes[cur.parent] {
		if cur.parent == anc {
			return true
		}
	}
	return false
}

func (t *Tree) clone() *Tree {
	nodes := make(map[string]*node, len(t.nodes))
	for id, n := range t.nodes {
		nodes[id] = n.clone()
	}
	return &Tree{root: t.root, nodes: nodes}
}

// Mutate applies fn as one atomic batch against a staged copy of the tree.
// The batch commits only when fn returns nil; any error from fn leaves the
// tree untouched. On commit it returns one event per affected block id,
// ordered by the first operation that touched the block, so created events
// appear in creation order. A block created and removed within the same
// batch yields no event.
func (t *Tree) Mutate(fn func(*Mutation) error) ([]Event, error) {
	m := &Mutation{staged: t.clone(), before: t, touched: map[string]*touch{}}
	if err := fn(m); err != nil {
		return nil, err
	}
	t.nodes = m.staged.nodes
	return m.events(), nil
}

// Mutation is the write handle passed to Tree.Mutate. Each operation either
// fully applies to the staged tree or rejects without changing it.
type Mutation struct {
	staged  *Tree
	before  *Tree
	seq     int
	touched map[string]*touch
}

type touch struct {
	seq     int
	existed bool  // present before the batch started
	last    Block // state captured when removed
}

func (m *Mutation) touchOf(id string) *touch {
	tc, ok := m.touched[id]
	if !ok {
		_, existed := m.before.nodes[id]
		tc = &touch{seq: m.seq, existed: existed}
		m.seq++
		m.touched[id] = tc
	}
	return tc
}

// Get returns a block from the staged tree.
func (m *Mutation) Get(id string) (Block, bool) { return m.staged.Get(id) }

// ChildIDs returns ordered child ids from the staged tree.
func (m *Mutation) ChildIDs(id string) []string { return m.staged.ChildIDs(id) }

// RootID returns the root block id.
func (m *Mutation) RootID() string { return m.staged.root }

// Create inserts b under parent at index; a negative or out-of-range index
// appends. A missing id is filled in, a populated id is preserved (snapshot
// decode rebuilds documents this way).
func (m *Mutation) Create(parent string, index int, b Block) (Block, error) {
	p, ok := m.staged.nodes[parent]
	if !ok {
		return Block{}, fmt.Errorf("create under missing block %q: %w", parent, apperr.ErrStructural)
	}
	if !p.block.Kind.Container() {
		return Block{}, fmt.Errorf("create under %s block: %w", p.block.Kind, apperr.ErrStructural)
	}
	if b.Kind == KindRoot {
		return Block{}, fmt.Errorf("create a second root: %w", apperr.ErrStructural)
	}
	if err := validate(b); err != nil {
		return Block{}, err
	}
	if b.ID == "" {
		b.ID = NewID()
	}
	if _, dup := m.staged.nodes[b.ID]; dup {
		return Block{}, fmt.Errorf("duplicate block id %q: %w", b.ID, apperr.ErrStructural)
	}
	m.staged.nodes[b.ID] = &node{block: b, parent: parent}
	p.children = insertAt(p.children, index, b.ID)
	m.touchOf(b.ID)
	return b, nil
}

// Remove deletes a block and its entire subtree. The root cannot be removed.
func (m *Mutation) Remove(id string) error {
	if id == m.staged.root {
		return fmt.Errorf("remove root: %w", apperr.ErrStructural)
	}
	n, ok := m.staged.nodes[id]
	if !ok {
		return fmt.Errorf("remove missing block %q: %w", id, apperr.ErrStructural)
	}
	p := m.staged.nodes[n.parent]
	p.children = removeFrom(p.children, id)
	m.removeSubtree(id)
	return nil
}

func (m *Mutation) removeSubtree(id string) {
	n := m.staged.nodes[id]
	tc := m.touchOf(id)
	tc.last = n.block
	delete(m.staged.nodes, id)
	for _, cid := range n.children {
		m.removeSubtree(cid)
	}
}

// Move reparents a block under newParent at index. Moving the root, moving
// under a non-container, and moving a block into its own subtree are all
// rejected without changing the tree.
func (m *Mutation) Move(id, newParent string, index int) error {
	if id == m.staged.root {
		return fmt.Errorf("move root: %w", apperr.ErrStructural)
	}
	n, ok := m.staged.nodes[id]
	if !ok {
		return fmt.Errorf("move missing block %q: %w", id, apperr.ErrStructural)
	}
	np, ok := m.staged.nodes[newParent]
	if !ok {
		return fmt.Errorf("move under missing block %q: %w", newParent, apperr.ErrStructural)
	}
	if !np.block.Kind.Container() {
		return fmt.Errorf("move under %s block: %w", np.block.Kind, apperr.ErrStructural)
	}
	if id == newParent || m.staged.isAncestor(id, newParent) {
		return fmt.Errorf("move %q into own subtree: %w", id, apperr.ErrCycle)
	}
	old := m.staged.nodes[n.parent]
	old.children = removeFrom(old.children, id)
	np.children = insertAt(np.children, index, id)
	n.parent = newParent
	m.touchOf(id)
	return nil
}

// Update replaces a block's content through fn, which receives the current
// value and returns the changed copy. Identity and kind are fixed.
func (m *Mutation) Update(id string, fn func(Block) Block) (Block, error) {
	n, ok := m.staged.nodes[id]
	if !ok {
		return Block{}, fmt.Errorf("update missing block %q: %w", id, apperr.ErrStructural)
	}
	next := fn(n.block)
	if next.ID != id || next.Kind != n.block.Kind {
		return Block{}, fmt.Errorf("update changes block identity: %w", apperr.ErrStructural)
	}
	if err := validate(next); err != nil {
		return Block{}, err
	}
	n.block = next
	m.touchOf(id)
	return next, nil
}

// SetRuns replaces the runs of a text-bearing block.
func (m *Mutation) SetRuns(id string, runs ...Run) (Block, error) {
	n, ok := m.staged.nodes[id]
	if !ok {
		return Block{}, fmt.Errorf("update missing block %q: %w", id, apperr.ErrStructural)
	}
	if !n.block.Kind.TextBearing() {
		return Block{}, fmt.Errorf("set runs on %s block: %w", n.block.Kind, apperr.ErrStructural)
	}
	return m.Update(id, func(b Block) Block { return b.WithRuns(runs...) })
}

func (m *Mutation) events() []Event {
	type entry struct {
		id string
		tc *touch
	}
	ordered := make([]entry, 0, len(m.touched))
	for id, tc := range m.touched {
		ordered = append(ordered, entry{id, tc})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].tc.seq < ordered[j].tc.seq })

	events := make([]Event, 0, len(ordered))
	for _, e := range ordered {
		n, present := m.staged.nodes[e.id]
		switch {
		case e.tc.existed && !present:
			events = append(events, Event{Kind: EventRemoved, ID: e.id, Block: e.tc.last})
		case !e.tc.existed && present:
			events = append(events, Event{Kind: EventCreated, ID: e.id, Block: n.block})
		case e.tc.existed && present:
			events = append(events, Event{Kind: EventUpdated, ID: e.id, Block: n.block})
		}
	}
	return events
}

func validate(b Block) error {
	switch b.Kind {
	case KindHeading:
		if b.Level < 1 || b.Level > 6 {
			return fmt.Errorf("heading level %d out of range: %w", b.Level, apperr.ErrStructural)
		}
	case KindAudio:
		if b.Audio == nil || b.Audio.RecordingID == "" || b.Audio.Source == "" {
			return fmt.Errorf("audio block payload incomplete: %w", apperr.ErrStructural)
		}
	case KindBlockRef:
		if b.Ref == nil || b.Ref.TargetBlockID == "" {
			return fmt.Errorf("block reference payload incomplete: %w", apperr.ErrStructural)
		}
	case KindBacklink:
		if b.Backlink == nil || b.Backlink.TargetNoteID == "" {
			return fmt.Errorf("backlink payload incomplete: %w", apperr.ErrStructural)
		}
	}
	return nil
}

func insertAt(ids []string, index int, id string) []string {
	if index < 0 || index >= len(ids) {
		return append(ids, id)
	}
	ids = append(ids, "")
	copy(ids[index+1:], ids[index:])
	ids[index] = id
	return ids
}

func removeFrom(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
