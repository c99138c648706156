package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind identifies the node type of a wire data value.
type ValueKind uint8

const (
	// KindNull is an absent or JSON null value.
	KindNull ValueKind = iota
	// KindNumber is a numeric scalar.
	KindNumber
	// KindList is an ordered sequence (JSON array).
	KindList
	// KindTuple is an ordered sequence encoded as {"tuple": [...]}.
	// Tuples exist so producers can say "this pair is one sample" or
	// "this pair is (xs, ys)" where a plain array would mean a batch.
	KindTuple
)

// Value is the data field of an update message before classification.
// It is a small tree of numbers, lists and tuples.
type Value struct {
	kind  ValueKind
	num   float64
	items []Value
}

// Scalar returns a numeric value.
func Scalar(v float64) Value {
	return Value{kind: KindNumber, num: v}
}

// List returns an ordered sequence of values.
func List(items ...Value) Value {
	return Value{kind: KindList, items: items}
}

// Tuple returns a tuple of values.
func Tuple(items ...Value) Value {
	return Value{kind: KindTuple, items: items}
}

// Samples returns a list of scalars, i.e. a batch of indexed samples.
func Samples(vs ...float64) Value {
	return List(scalars(vs)...)
}

// Series returns the (xs, ys) tuple that sets a line to paired shape.
func Series(xs, ys []float64) Value {
	return Tuple(List(scalars(xs)...), List(scalars(ys)...))
}

// Points returns a list of (x, y) pairs. Like Series it replaces the
// displayed series wholesale.
func Points(pts [][2]float64) Value {
	items := make([]Value, len(pts))
	for i, p := range pts {
		items[i] = Tuple(Scalar(p[0]), Scalar(p[1]))
	}
	return List(items...)
}

func scalars(vs []float64) []Value {
	items := make([]Value, len(vs))
	for i, v := range vs {
		items[i] = Scalar(v)
	}
	return items
}

// Kind reports the node type.
func (v Value) Kind() ValueKind { return v.kind }

// Float returns the number held by a KindNumber value.
func (v Value) Float() float64 { return v.num }

// Items returns the elements of a list or tuple.
func (v Value) Items() []Value { return v.items }

// IsSequence reports whether v is a list or a tuple.
func (v Value) IsSequence() bool {
	return v.kind == KindList || v.kind == KindTuple
}

// MarshalJSON encodes lists as arrays and tuples as {"tuple": [...]}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return json.Marshal(v.num)
	case KindList:
		return marshalItems(v.items)
	case KindTuple:
		inner, err := marshalItems(v.items)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.WriteString(`{"tuple":`)
		buf.Write(inner)
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

func marshalItems(items []Value) ([]byte, error) {
	if items == nil {
		items = []Value{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes numbers, arrays, {"tuple": [...]} and the series
// shorthand {"x": [...], "y": [...]}.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := fromRaw(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func fromRaw(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case float64:
		return Scalar(t), nil
	case []any:
		items, err := fromRawItems(t)
		if err != nil {
			return Value{}, err
		}
		return List(items...), nil
	case map[string]any:
		if inner, ok := t["tuple"]; ok && len(t) == 1 {
			arr, ok := inner.([]any)
			if !ok {
				return Value{}, fmt.Errorf("tuple must hold an array, got %T", inner)
			}
			items, err := fromRawItems(arr)
			if err != nil {
				return Value{}, err
			}
			return Tuple(items...), nil
		}
		xs, hasX := t["x"]
		ys, hasY := t["y"]
		if hasX && hasY && len(t) == 2 {
			x, err := fromRaw(xs)
			if err != nil {
				return Value{}, err
			}
			y, err := fromRaw(ys)
			if err != nil {
				return Value{}, err
			}
			return Tuple(x, y), nil
		}
		return Value{}, fmt.Errorf("unsupported object in data (want {\"tuple\": [...]} or {\"x\": [...], \"y\": [...]})")
	default:
		return Value{}, fmt.Errorf("unsupported data element of type %T", raw)
	}
}

func fromRawItems(arr []any) ([]Value, error) {
	items := make([]Value, len(arr))
	for i, el := range arr {
		item, err := fromRaw(el)
		if err != nil {
			return nil, err
		}
		if item.kind == KindNull {
			return nil, fmt.Errorf("null element at index %d", i)
		}
		items[i] = item
	}
	return items, nil
}
