package types

import "encoding/json"

type ValueKind int

const (
	ValueAbsent ValueKind = iota
	ValueNull
	ValueString
	ValueNumber
	ValueBool
	ValueList
)

// Value is one extracted value: string | number | boolean | list | null, or
// absent when the extractor emitted nothing for the key.
type Value struct {
	kind ValueKind
	str  string
	num  json.Number
	b    bool
	list []Value
}

func Absent() Value                      { return Value{kind: ValueAbsent} }
func Null() Value                        { return Value{kind: ValueNull} }
func String(s string) Value              { return Value{kind: ValueString, str: s} }
func Number(n json.Number) Value         { return Value{kind: ValueNumber, num: n} }
func Bool(b bool) Value                  { return Value{kind: ValueBool, b: b} }
func List(items ...Value) Value          { return Value{kind: ValueList, list: append([]Value{}, items...)} }
func (v Value) Kind() ValueKind          { return v.kind }
func (v Value) Str() string              { return v.str }
func (v Value) Items() []Value           { return append([]Value(nil), v.list...) }
func (v Value) NumberValue() json.Number { return v.num }

func Strings(items ...string) Value {
	out := make([]Value, 0, len(items))
	for _, s := range items {
		out = append(out, String(s))
	}
	return Value{kind: ValueList, list: out}
}

// IsNoExtraction reports the values the merge treats as "nothing extracted":
// absent, null and the empty string. Empty lists are deliberately not included.
func (v Value) IsNoExtraction() bool {
	switch v.kind {
	case ValueAbsent, ValueNull:
		return true
	case ValueString:
		return v.str == ""
	default:
		return false
	}
}

// Native converts to the plain Go value written into a record payload.
func (v Value) Native() any {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return v.num
	case ValueBool:
		return v.b
	case ValueList:
		out := make([]any, 0, len(v.list))
		for _, item := range v.list {
			out = append(out, item.Native())
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// ValueFromNative builds a Value from a decoded JSON value. ok is false for
// objects or other shapes outside the closed value set.
func ValueFromNative(in any) (Value, bool) {
	switch t := in.(type) {
	case nil:
		return Null(), true
	case string:
		return String(t), true
	case json.Number:
		return Number(t), true
	case float64:
		return Number(json.Number(formatFloat(t))), true
	case int:
		return Number(json.Number(formatFloat(float64(t)))), true
	case bool:
		return Bool(t), true
	case []string:
		return Strings(t...), true
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			v, ok := ValueFromNative(item)
			if !ok {
				return Value{}, false
			}
			items = append(items, v)
		}
		return Value{kind: ValueList, list: items}, true
	default:
		return Value{}, false
	}
}

func formatFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

type ExtractedField struct {
	Key   string
	Value Value
}

// ExtractedData keeps the extractor's key order so merges are reproducible.
type ExtractedData []ExtractedField

func (d ExtractedData) Get(key string) Value {
	for _, f := range d {
		if f.Key == key {
			return f.Value
		}
	}
	return Absent()
}

func (d ExtractedData) Keys() []string {
	out := make([]string, 0, len(d))
	for _, f := range d {
		out = append(out, f.Key)
	}
	return out
}
