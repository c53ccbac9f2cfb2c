package block

import (
	"errors"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
)

func mustCreate(t *testing.T, tr *Tree, parent string, b Block) Block {
	t.Helper()
	var out Block
	_, err := tr.Mutate(func(m *Mutation) error {
		var err error
		out, err = m.Create(parent, -1, b)
		return err
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", b.Kind, err)
	}
	return out
}

func TestCreateAndChildren(t *testing.T) {
	tr := NewTree()
	a := mustCreate(t, tr, tr.RootID(), Paragraph("first"))
	b := mustCreate(t, tr, tr.RootID(), Paragraph("second"))

	kids := tr.ChildIDs(tr.RootID())
	if len(kids) != 2 || kids[0] != a.ID || kids[1] != b.ID {
		t.Fatalf("children = %v, want [%s %s]", kids, a.ID, b.ID)
	}
	if tr.Len() != 3 {
		t.Errorf("Len = %d, want 3", tr.Len())
	}
}

func TestCreateAtIndex(t *testing.T) {
	tr := NewTree()
	a := mustCreate(t, tr, tr.RootID(), Paragraph("a"))
	c := mustCreate(t, tr, tr.RootID(), Paragraph("c"))

	var b Block
	_, err := tr.Mutate(func(m *Mutation) error {
		var err error
		b, err = m.Create(tr.RootID(), 1, Paragraph("b"))
		return err
	})
	if err != nil {
		t.Fatalf("Create at index: %v", err)
	}
	kids := tr.ChildIDs(tr.RootID())
	want := []string{a.ID, b.ID, c.ID}
	for i := range want {
		if kids[i] != want[i] {
			t.Fatalf("children = %v, want %v", kids, want)
		}
	}
}

func TestCreateUnderMissingParent(t *testing.T) {
	tr := NewTree()
	_, err := tr.Mutate(func(m *Mutation) error {
		_, err := m.Create("nope", -1, Paragraph("x"))
		return err
	})
	if !errors.Is(err, apperr.ErrStructural) {
		t.Fatalf("err = %v, want ErrStructural", err)
	}
	if tr.Len() != 1 {
		t.Errorf("failed batch mutated the tree: Len = %d", tr.Len())
	}
}

func TestCreateUnderLeafRejected(t *testing.T) {
	tr := NewTree()
	c := mustCreate(t, tr, tr.RootID(), Code("go", "x := 1"))
	_, err := tr.Mutate(func(m *Mutation) error {
		_, err := m.Create(c.ID, -1, Paragraph("child"))
		return err
	})
	if !errors.Is(err, apperr.ErrStructural) {
		t.Fatalf("err = %v, want ErrStructural", err)
	}
}

func TestRemoveCascades(t *testing.T) {
	tr := NewTree()
	item := mustCreate(t, tr, tr.RootID(), ListItem("parent"))
	nested := mustCreate(t, tr, item.ID, ListItem("nested"))

	events, err := tr.Mutate(func(m *Mutation) error {
		return m.Remove(item.ID)
	})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 removals", len(events))
	}
	if events[0].Kind != EventRemoved || events[0].ID != item.ID {
		t.Errorf("first event = %v %s", events[0].Kind, events[0].ID)
	}
	if events[1].ID != nested.ID {
		t.Errorf("second event id = %s, want %s", events[1].ID, nested.ID)
	}
}

func TestRemoveRootRejected(t *testing.T) {
	tr := NewTree()
	_, err := tr.Mutate(func(m *Mutation) error {
		return m.Remove(tr.RootID())
	})
	if !errors.Is(err, apperr.ErrStructural) {
		t.Fatalf("err = %v, want ErrStructural", err)
	}
}

func TestMoveReorders(t *testing.T) {
	tr := NewTree()
	a := mustCreate(t, tr, tr.RootID(), Paragraph("a"))
	b := mustCreate(t, tr, tr.RootID(), Paragraph("b"))

	_, err := tr.Mutate(func(m *Mutation) error {
		return m.Move(b.ID, tr.RootID(), 0)
	})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	kids := tr.ChildIDs(tr.RootID())
	if kids[0] != b.ID || kids[1] != a.ID {
		t.Errorf("children = %v, want [%s %s]", kids, b.ID, a.ID)
	}
}

func TestMoveIntoOwnSubtreeRejected(t *testing.T) {
	tr := NewTree()
	outer := mustCreate(t, tr, tr.RootID(), ListItem("outer"))
	inner := mustCreate(t, tr, outer.ID, ListItem("inner"))

	_, err := tr.Mutate(func(m *Mutation) error {
		return m.Move(outer.ID, inner.ID, -1)
	})
	if !errors.Is(err, apperr.ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
	if p, _ := tr.Parent(outer.ID); p != tr.RootID() {
		t.Error("rejected move changed the tree")
	}

	_, err = tr.Mutate(func(m *Mutation) error {
		return m.Move(outer.ID, outer.ID, -1)
	})
	if !errors.Is(err, apperr.ErrCycle) {
		t.Fatalf("self move err = %v, want ErrCycle", err)
	}
}

func TestMutateBatchAtomic(t *testing.T) {
	tr := NewTree()
	boom := errors.New("boom")
	_, err := tr.Mutate(func(m *Mutation) error {
		if _, err := m.Create(tr.RootID(), -1, Paragraph("kept?")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if tr.Len() != 1 {
		t.Errorf("failed batch left %d blocks, want 1", tr.Len())
	}
}

func TestEventsOncePerBlock(t *testing.T) {
	tr := NewTree()
	events, err := tr.Mutate(func(m *Mutation) error {
		b, err := m.Create(tr.RootID(), -1, Paragraph("draft"))
		if err != nil {
			return err
		}
		_, err = m.SetRuns(b.ID, Text("final"))
		return err
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Kind != EventCreated {
		t.Errorf("kind = %v, want created", events[0].Kind)
	}
	if got := events[0].Block.Text(); got != "final" {
		t.Errorf("event block text = %q, want committed state", got)
	}
}

func TestEventsCreatedInCreationOrder(t *testing.T) {
	tr := NewTree()
	var ids []string
	events, err := tr.Mutate(func(m *Mutation) error {
		for _, txt := range []string{"one", "two", "three"} {
			b, err := m.Create(tr.RootID(), -1, Paragraph(txt))
			if err != nil {
				return err
			}
			ids = append(ids, b.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Kind != EventCreated {
			t.Errorf("event %d kind = %v", i, ev.Kind)
		}
		if ev.ID != ids[i] {
			t.Errorf("event %d id = %s, want %s", i, ev.ID, ids[i])
		}
	}
}

func TestCreateThenRemoveEmitsNothing(t *testing.T) {
	tr := NewTree()
	events, err := tr.Mutate(func(m *Mutation) error {
		b, err := m.Create(tr.RootID(), -1, Paragraph("ephemeral"))
		if err != nil {
			return err
		}
		return m.Remove(b.ID)
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %v, want none", events)
	}
}

func TestUpdateKeepsIdentity(t *testing.T) {
	tr := NewTree()
	p := mustCreate(t, tr, tr.RootID(), Paragraph("before"))

	_, err := tr.Mutate(func(m *Mutation) error {
		_, err := m.Update(p.ID, func(b Block) Block {
			b.Kind = KindHeading
			return b
		})
		return err
	})
	if !errors.Is(err, apperr.ErrStructural) {
		t.Fatalf("kind change err = %v, want ErrStructural", err)
	}

	events, err := tr.Mutate(func(m *Mutation) error {
		_, err := m.SetRuns(p.ID, Text("after"))
		return err
	})
	if err != nil {
		t.Fatalf("SetRuns: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventUpdated {
		t.Fatalf("events = %v, want one updated", events)
	}
	got, _ := tr.Get(p.ID)
	if got.Text() != "after" {
		t.Errorf("text = %q, want %q", got.Text(), "after")
	}
}

func TestValidatePayloads(t *testing.T) {
	tr := NewTree()
	cases := []struct {
		name string
		b    Block
	}{
		{"audio missing payload", New(KindAudio)},
		{"audio missing source", AudioBlock(AudioPayload{RecordingID: "r1"})},
		{"ref missing target", New(KindBlockRef)},
		{"backlink missing note", New(KindBacklink)},
		{"heading level zero", New(KindHeading)},
	}
	for _, tc := range cases {
		_, err := tr.Mutate(func(m *Mutation) error {
			_, err := m.Create(tr.RootID(), -1, tc.b)
			return err
		})
		if !errors.Is(err, apperr.ErrStructural) {
			t.Errorf("%s: err = %v, want ErrStructural", tc.name, err)
		}
	}
}

func TestHasChildOfKind(t *testing.T) {
	tr := NewTree()
	p := mustCreate(t, tr, tr.RootID(), ListItem("spoken"))
	if tr.HasChildOfKind(p.ID, KindAudio) {
		t.Error("no audio child yet")
	}
	mustCreate(t, tr, p.ID, AudioBlock(AudioPayload{RecordingID: "r1", Source: "a.wav"}))
	if !tr.HasChildOfKind(p.ID, KindAudio) {
		t.Error("audio child not found")
	}
}

func TestWalkDepth(t *testing.T) {
	tr := NewTree()
	item := mustCreate(t, tr, tr.RootID(), ListItem("outer"))
	mustCreate(t, tr, item.ID, ListItem("inner"))

	depths := map[string]int{}
	err := tr.Walk(func(b Block, depth int) error {
		depths[b.ID] = depth
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if depths[tr.RootID()] != 0 || depths[item.ID] != 1 {
		t.Errorf("depths = %v", depths)
	}
}
