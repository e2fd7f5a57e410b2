package diagnostics

import (
	"encoding/json"
	"math"
	"strconv"
)

// Kind identifies the runtime kind of a cell value.
type Kind uint8

const (
	// KindMissing marks a key that is present in a row without a value.
	KindMissing Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	// KindOther covers objects, arrays and anything else that is not a scalar.
	KindOther
)

// Name returns the kind name reported in type-inconsistency details.
func (k Kind) Name() string {
	switch k {
	case KindMissing:
		return "undefined"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	}
	return "object"
}

func (k Kind) String() string { return k.Name() }

// Value is a single cell. The zero Value is Missing.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// Row maps column names to cell values. A key that is not in the map is absent.
type Row map[string]Value

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Null() Value            { return Value{kind: KindNull} }
func Missing() Value         { return Value{kind: KindMissing} }

// Other wraps a non-scalar value by its raw textual form (e.g. JSON).
func Other(raw string) Value { return Value{kind: KindOther, str: raw} }

func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload for string and other values.
func (v Value) Str() string { return v.str }

func (v Value) Num() float64 { return v.num }

func (v Value) Bool() bool { return v.b }

// Valid reports whether v counts as a value: not missing, not null and not "".
func (v Value) Valid() bool {
	switch v.kind {
	case KindMissing, KindNull:
		return false
	case KindString:
		return v.str != ""
	}
	return true
}

// Empty reports falsy-empty values: missing, null, "" or the literal string "null".
func (v Value) Empty() bool {
	switch v.kind {
	case KindMissing, KindNull:
		return true
	case KindString:
		return v.str == "" || v.str == "null"
	}
	return false
}

// Equal compares kind and payload without coercion.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.key() == o.key()
}

// key is a canonical representation used for distinct-value counting.
func (v Value) key() string {
	switch v.kind {
	case KindString, KindOther:
		return v.str
	case KindNumber:
		n := v.num
		if n == 0 {
			n = 0 // folds -0
		}
		if math.IsNaN(n) {
			return "NaN"
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Text renders the value for tables and messages.
func (v Value) Text() string {
	switch v.kind {
	case KindMissing:
		return ""
	case KindNull:
		return "null"
	}
	return v.key()
}

// MarshalJSON encodes v as its natural JSON scalar; other values are emitted raw when
// they hold valid JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return json.Marshal(v.key())
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindOther:
		if json.Valid([]byte(v.str)) {
			return []byte(v.str), nil
		}
		return json.Marshal(v.str)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes a JSON scalar; objects and arrays become Other.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case string:
		*v = String(x)
	case float64:
		*v = Number(x)
	case bool:
		*v = Bool(x)
	default:
		*v = Other(string(data))
	}
	return nil
}
