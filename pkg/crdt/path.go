package crdt

import "strings"

// GetPath navigates a dot-separated path ("profile.name") through nested
// maps, hiding tombstones at every level exactly like Get does at the
// top level.
func (d *Doc) GetPath(path string) (Value, bool) {
	segs := strings.Split(path, ".")
	cur := d
	for i, seg := range segs {
		v, ok := cur.Get(seg)
		if !ok {
			return Value{}, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		if v.Kind != KindMap {
			return Value{}, false
		}
		cur = v.Map
	}
	return Value{}, false
}

// SetPath assigns val at a dot-separated path, creating intermediate maps
// as needed. Every map created along the way is stamped with the same
// (height, origin) as the leaf being set, since they all belong to the
// same staged delta; maps that already exist keep their own stamps.
func (d *Doc) SetPath(path string, val Value, height uint64, origin string) {
	segs := strings.Split(path, ".")
	cur := d
	for _, seg := range segs[:len(segs)-1] {
		existing, ok := cur.Get(seg)
		if !ok || existing.Kind != KindMap {
			existing = MapValue(NewDoc())
			cur.Set(seg, existing, height, origin)
		}
		cur = existing.Map
	}
	cur.Set(segs[len(segs)-1], val, height, origin)
}

// DeletePath tombstones the value at a dot-separated path. Intermediate
// segments that do not resolve to a map are treated as already absent;
// there is nothing to tombstone in that case.
func (d *Doc) DeletePath(path string, height uint64, origin string) {
	segs := strings.Split(path, ".")
	cur := d
	for _, seg := range segs[:len(segs)-1] {
		existing, ok := cur.Get(seg)
		if !ok || existing.Kind != KindMap {
			return
		}
		cur = existing.Map
	}
	cur.Delete(segs[len(segs)-1], height, origin)
}
