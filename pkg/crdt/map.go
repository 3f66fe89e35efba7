package crdt

import (
	"encoding/json"
	"sort"
)

// tag records the provenance of a single key's current value: the height
// of the entry that wrote it and that entry's ID, used to break ties when
// two concurrent writes touch the same key at the same height.
type tag struct {
	Height uint64
	Origin string
}

// laterThan reports whether t is the winner when compared against o under
// the (height, origin) ordering Merge uses: higher height wins outright;
// equal height falls back to lexicographic comparison of the origin entry ID.
func (t tag) laterThan(o tag) bool {
	if t.Height != o.Height {
		return t.Height > o.Height
	}
	return t.Origin > o.Origin
}

type entryValue struct {
	Value Value
	Tag   tag
}

// Doc is a CRDT map from string keys to Values. Deleted keys remain
// present internally as tombstones (Value.Kind == KindDeleted); the
// public accessors hide them while GetRaw exposes everything, matching the
// model where a concurrent delete must never be silently resurrected by
// a stale read.
type Doc struct {
	entries map[string]entryValue
}

// NewDoc returns an empty document.
func NewDoc() *Doc {
	return &Doc{entries: make(map[string]entryValue)}
}

// Set assigns key to val, tagged with the given provenance. Callers
// staging a transaction pass the entry's own (height, id) once it is
// known; see pkg/dag for how that tag is threaded through.
func (d *Doc) Set(key string, val Value, height uint64, origin string) {
	if d.entries == nil {
		d.entries = make(map[string]entryValue)
	}
	d.entries[key] = entryValue{Value: val, Tag: tag{Height: height, Origin: origin}}
}

// Delete tombstones key. The tombstone is a real, persisted value: it
// must survive merges so a concurrent write from before the delete does
// not resurrect the key.
func (d *Doc) Delete(key string, height uint64, origin string) {
	d.Set(key, Deleted(), height, origin)
}

// Get returns the value at key, hiding tombstones: a deleted key reports
// !ok just like a key that was never set.
func (d *Doc) Get(key string) (Value, bool) {
	ev, ok := d.entries[key]
	if !ok || ev.Value.IsDeleted() {
		return Value{}, false
	}
	return ev.Value, true
}

// GetRaw returns the value at key including tombstones, for callers (the
// sync layer, debugging tools) that need to see deletions directly.
func (d *Doc) GetRaw(key string) (Value, bool) {
	ev, ok := d.entries[key]
	if !ok {
		return Value{}, false
	}
	return ev.Value, true
}

// GetText is a typed convenience accessor over Get.
func (d *Doc) GetText(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok || v.Kind != KindText {
		return "", false
	}
	return v.Text, true
}

// GetInt is a typed convenience accessor over Get.
func (d *Doc) GetInt(key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

// GetBool is a typed convenience accessor over Get.
func (d *Doc) GetBool(key string) (bool, bool) {
	v, ok := d.Get(key)
	if !ok || v.Kind != KindBool {
		return false, false
	}
	return v.Bool, true
}

// Keys returns the live (non-tombstoned) keys in sorted order.
func (d *Doc) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for k, ev := range d.entries {
		if !ev.Value.IsDeleted() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live keys.
func (d *Doc) Len() int {
	return len(d.Keys())
}

// IsEmpty reports whether the document has no live keys. A document
// consisting only of tombstones is still considered empty.
func (d *Doc) IsEmpty() bool {
	for _, ev := range d.entries {
		if !ev.Value.IsDeleted() {
			return false
		}
	}
	return true
}

// wireDoc is the serialized shape of a Doc: a plain JSON object of
// key -> Value. Provenance tags are never part of the wire format; they
// are reattached by whoever folds a delta into accumulated state (see
// Merge), using the height/id of the entry that produced the delta.
type wireDoc map[string]Value

func (d *Doc) MarshalJSON() ([]byte, error) {
	w := make(wireDoc, len(d.entries))
	for k, ev := range d.entries {
		w[k] = ev.Value
	}
	return json.Marshal(w)
}

func (d *Doc) UnmarshalJSON(data []byte) error {
	var w wireDoc
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	d.entries = make(map[string]entryValue, len(w))
	for k, v := range w {
		d.entries[k] = entryValue{Value: v}
	}
	return nil
}
