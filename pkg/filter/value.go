// Package filter models catalog search filters as a closed set of JSON-like
// values and normalizes them into a comparable form.
package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrUnsupportedValue indicates a filter value outside the supported kinds.
var ErrUnsupportedValue = errors.New("unsupported filter value")

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindNull is an absent or unspecified value.
	KindNull Kind = iota
	// KindString is a text value.
	KindString
	// KindNumber is a numeric value kept in its decimal text form.
	KindNumber
	// KindBool is a boolean value.
	KindBool
	// KindMapping is a nested name->value mapping.
	KindMapping
	// KindSequence is an ordered list of values.
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// FilterSet maps filter names to values.
type FilterSet map[string]Value

// Value is a single filter value. The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	num  json.Number
	b    bool
	m    FilterSet
	seq  []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Str returns a string value.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Num returns a number value from its decimal text.
func Num(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// Int returns a number value.
func Int(i int64) Value { return Num(json.Number(strconv.FormatInt(i, 10))) }

// Float returns a number value.
func Float(f float64) Value { return Num(json.Number(strconv.FormatFloat(f, 'g', -1, 64))) }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Map returns a mapping value. A nil set becomes an empty mapping.
func Map(m FilterSet) Value {
	if m == nil {
		m = FilterSet{}
	}
	return Value{kind: KindMapping, m: m}
}

// List returns a sequence value.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// StringValue returns the text of a string value.
func (v Value) StringValue() string { return v.str }

// NumberValue returns the decimal text of a number value.
func (v Value) NumberValue() json.Number { return v.num }

// BoolValue returns the truth of a boolean value.
func (v Value) BoolValue() bool { return v.b }

// MapValue returns the entries of a mapping value.
func (v Value) MapValue() FilterSet { return v.m }

// ListValue returns the elements of a sequence value.
func (v Value) ListValue() []Value { return v.seq }

// FromAny converts a decoded JSON value into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return Str(x), nil
	case json.Number:
		if _, err := strconv.ParseFloat(string(x), 64); err != nil {
			return Value{}, fmt.Errorf("%w: number %q", ErrUnsupportedValue, x)
		}
		return Num(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Value{}, fmt.Errorf("%w: non-finite number", ErrUnsupportedValue)
		}
		return Float(x), nil
	case float32:
		return FromAny(float64(x))
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return Num(json.Number(strconv.FormatUint(x, 10))), nil
	case bool:
		return Bool(x), nil
	case map[string]any:
		set, err := FilterSetFromMap(x)
		if err != nil {
			return Value{}, err
		}
		return Map(set), nil
	case map[string]string:
		set := make(FilterSet, len(x))
		for k, s := range x {
			set[k] = Str(s)
		}
		return Map(set), nil
	case FilterSet:
		return Map(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, v)
		}
		return List(items...), nil
	case []string:
		items := make([]Value, 0, len(x))
		for _, s := range x {
			items = append(items, Str(s))
		}
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
	}
}

// FilterSetFromMap converts a decoded JSON object into a FilterSet.
func FilterSetFromMap(raw map[string]any) (FilterSet, error) {
	set := make(FilterSet, len(raw))
	for name, item := range raw {
		v, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}
		set[name] = v
	}
	return set, nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if v.num == "" {
			return []byte("0"), nil
		}
		return []byte(v.num), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindMapping:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(map[string]Value(v.m))
	case KindSequence:
		if v.seq == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.seq)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Numbers keep their text form.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
