// Package crdt implements the nested CRDT document model used for every
// substore: a map keyed by string with typed leaf values, tombstones for
// deletion, and ordered lists keyed by fractional position. Merge is last-
// write-wins, with the winning side decided by the (height, entry-ID) tag
// the transaction engine attaches to every write it folds in.
package crdt

import (
	"encoding/json"
	"fmt"
)

// Kind tags which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindText
	KindDeleted
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindText:
		return "text"
	case KindDeleted:
		return "deleted"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// IsLeaf reports whether k is a scalar (including the tombstone), as
// opposed to a branch type that recurses on merge.
func (k Kind) IsLeaf() bool {
	return k == KindNull || k == KindBool || k == KindInt || k == KindText || k == KindDeleted
}

// Value is the tagged union stored at every key of a Doc and every
// element of an Array: a scalar, a tombstone, a nested Doc, or a nested
// Array.
type Value struct {
	Kind Kind
	Bool bool
	Int  int64
	Text string
	Map  *Doc
	List *Array
}

func Null() Value           { return Value{Kind: KindNull} }
func Bool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func Text(s string) Value   { return Value{Kind: KindText, Text: s} }
func Deleted() Value        { return Value{Kind: KindDeleted} }
func MapValue(d *Doc) Value { return Value{Kind: KindMap, Map: d} }
func ListValue(a *Array) Value {
	return Value{Kind: KindList, List: a}
}

func (v Value) IsDeleted() bool { return v.Kind == KindDeleted }

// wireValue is the on-the-wire JSON shape of a Value: a tagged object
// so that a nested map or list is unambiguous from a scalar of the same
// Go zero value.
type wireValue struct {
	Kind string          `json:"kind"`
	Bool bool            `json:"bool,omitempty"`
	Int  int64           `json:"int,omitempty"`
	Text string          `json:"text,omitempty"`
	Map  *Doc            `json:"map,omitempty"`
	List *Array          `json:"list,omitempty"`
	Raw  json.RawMessage `json:"-"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.Kind.String()}
	switch v.Kind {
	case KindBool:
		w.Bool = v.Bool
	case KindInt:
		w.Int = v.Int
	case KindText:
		w.Text = v.Text
	case KindMap:
		w.Map = v.Map
	case KindList:
		w.List = v.List
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("crdt: unmarshal value: %w", err)
	}
	switch w.Kind {
	case "null", "":
		*v = Null()
	case "bool":
		*v = Bool(w.Bool)
	case "int":
		*v = Int(w.Int)
	case "text":
		*v = Text(w.Text)
	case "deleted":
		*v = Deleted()
	case "map":
		if w.Map == nil {
			w.Map = NewDoc()
		}
		*v = MapValue(w.Map)
	case "list":
		if w.List == nil {
			w.List = NewArray()
		}
		*v = ListValue(w.List)
	default:
		return fmt.Errorf("crdt: unknown value kind %q", w.Kind)
	}
	return nil
}
