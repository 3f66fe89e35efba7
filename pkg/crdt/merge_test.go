package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTombstoneHiddenFromPublicGet(t *testing.T) {
	d := NewDoc()
	d.Set("k", Text("v"), 0, "e1")
	d.Delete("k", 1, "e2")

	_, ok := d.Get("k")
	assert.False(t, ok, "deleted key should not be visible via Get")

	raw, ok := d.GetRaw("k")
	assert.True(t, ok && raw.Kind == KindDeleted, "deleted key must remain visible via GetRaw as a tombstone")
	assert.Equal(t, 0, d.Len(), "Len should not count tombstones")
}

func TestMergeHigherHeightAlwaysWins(t *testing.T) {
	state := NewDoc()
	state.Set("k", Text("old"), 0, "e0")

	delta := NewDoc()
	delta.Set("k", Text("new"), 0, "e1")

	Merge(state, delta, 1, "e1")

	got, ok := state.Get("k")
	assert.True(t, ok, "expected strictly later height to win")
	assert.Equal(t, "new", got.Text)
}

func TestMergeDeleteWinsAtSameHeightTie(t *testing.T) {
	// Two siblings at the same height: one sets k='u', the other deletes k.
	// Scenario: delete must win regardless of which entry has the larger ID.
	state := NewDoc()
	state.Set("k", Text("v"), 0, "root")

	setDelta := NewDoc()
	setDelta.Set("k", Text("u"), 0, "")
	delDelta := NewDoc()
	delDelta.Delete("k", 0, "")

	a := Merge(cloneDoc(state), setDelta, 1, "zzz-set")
	Merge(a, delDelta, 1, "aaa-del")
	_, ok := a.Get("k")
	assert.False(t, ok, "expected tombstone to win over a same-height write even with a lexicographically smaller origin")

	b := Merge(cloneDoc(state), delDelta, 1, "aaa-del")
	Merge(b, setDelta, 1, "zzz-set")
	_, ok = b.Get("k")
	assert.False(t, ok, "expected tombstone to win over a same-height write regardless of fold order")
}

func TestMergeSameHeightNonDeleteTieByOrigin(t *testing.T) {
	state := NewDoc()

	left := NewDoc()
	left.Set("k", Text("b"), 0, "")
	right := NewDoc()
	right.Set("k", Text("c"), 0, "")

	merged := Merge(cloneDoc(state), left, 2, "entryB")
	Merge(merged, right, 2, "entryC")

	got, _ := merged.Get("k")
	assert.Equal(t, "c", got.Text, "expected the larger origin ID to win a same-height tie")
}

func TestMergeLaterWriteRevivesDeletedKey(t *testing.T) {
	state := NewDoc()
	state.Set("k", Deleted(), 1, "e1")

	delta := NewDoc()
	delta.Set("k", Text("w"), 2, "e2")
	Merge(state, delta, 2, "e2")

	got, ok := state.Get("k")
	assert.True(t, ok, "a strictly later write must override an earlier tombstone")
	assert.Equal(t, "w", got.Text)
}

func TestMergeRecursesIntoNestedMaps(t *testing.T) {
	state := NewDoc()
	inner := NewDoc()
	inner.Set("a", Text("1"), 0, "e0")
	state.Set("profile", MapValue(inner), 0, "e0")

	delta := NewDoc()
	deltaInner := NewDoc()
	deltaInner.Set("b", Text("2"), 0, "")
	delta.Set("profile", MapValue(deltaInner), 0, "")

	Merge(state, delta, 1, "e1")

	got, ok := state.GetPath("profile.a")
	assert.True(t, ok, "merging maps must preserve keys untouched by the incoming delta")
	assert.Equal(t, "1", got.Text)

	got, ok = state.GetPath("profile.b")
	assert.True(t, ok, "merging maps must adopt keys newly introduced by the incoming delta")
	assert.Equal(t, "2", got.Text)
}

func TestMergeOnDisjointKeysIsOrderIndependent(t *testing.T) {
	left := NewDoc()
	left.Set("a", Int(1), 0, "e1")
	right := NewDoc()
	right.Set("b", Int(2), 0, "e2")

	ab := Merge(cloneDoc(NewDoc()), left, 0, "e1")
	Merge(ab, right, 0, "e2")

	ba := Merge(cloneDoc(NewDoc()), right, 0, "e2")
	Merge(ba, left, 0, "e1")

	va, _ := ab.GetInt("a")
	vb, _ := ab.GetInt("b")
	wa, _ := ba.GetInt("a")
	wb, _ := ba.GetInt("b")
	assert.Equal(t, wa, va, "folding disjoint-key deltas in either order must produce the same state")
	assert.Equal(t, wb, vb, "folding disjoint-key deltas in either order must produce the same state")
}

func TestSetPathCreatesIntermediateMaps(t *testing.T) {
	d := NewDoc()
	d.SetPath("a.b.c", Text("leaf"), 0, "e1")

	got, ok := d.GetPath("a.b.c")
	assert.True(t, ok, "SetPath should create intermediate maps and place the leaf value")
	assert.Equal(t, "leaf", got.Text)
}

func cloneDoc(d *Doc) *Doc {
	out := NewDoc()
	for k, v := range d.entries {
		out.entries[k] = v
	}
	return out
}
