package types

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// Kind identifies which member of the closed value set a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindInt64
	KindFloat64
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindText:
		return "text"
	default:
		return "null"
	}
}

// Value is a single typed cell in a row. Values are immutable once created.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// NewInt64Value creates a new Value holding an integer.
func NewInt64Value(v int64) Value {
	return Value{kind: KindInt64, i: v}
}

// NewFloat64Value creates a new Value holding a float.
func NewFloat64Value(v float64) Value {
	return Value{kind: KindFloat64, f: v}
}

// NewTextValue creates a new Value holding a string.
func NewTextValue(v string) Value {
	return Value{kind: KindText, s: v}
}

// NewNullValue creates a new null Value.
func NewNullValue() Value {
	return Value{kind: KindNull}
}

func (v Value) Kind() Kind { return v.kind }

// IsNull returns true if the value is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt64 returns the integer value. Only valid for KindInt64.
func (v Value) AsInt64() int64 { return v.i }

// AsFloat64 returns the float value. Only valid for KindFloat64.
func (v Value) AsFloat64() float64 { return v.f }

// AsText returns the string value. Only valid for KindText.
func (v Value) AsText() string { return v.s }

// String returns a string representation of the value.
func (v Value) String() string {
	switch v.kind {
	case KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f)
	case KindText:
		return v.s
	default:
		return "NULL"
	}
}

// numeric converts int64 and float64 values to a common float64 scale
// so the two numeric kinds compare against each other.
func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindInt64:
		return float64(v.i), true
	case KindFloat64:
		return v.f, true
	default:
		return 0, false
	}
}

// Equals checks whether two values compare equal. Null never equals
// anything, including another null (SQL semantics).
func (v Value) Equals(other Value) bool {
	if v.kind == KindNull || other.kind == KindNull {
		return false
	}
	return v.CompareTo(other) == 0
}

// CompareTo returns -1, 0, or 1 if this value is less than, equal to, or
// greater than the other. Nulls sort before every non-null value, and
// mismatched non-numeric kinds compare by kind so the ordering stays total.
func (v Value) CompareTo(other Value) int {
	if v.kind == KindNull || other.kind == KindNull {
		if v.kind == other.kind {
			return 0
		}
		if v.kind == KindNull {
			return -1
		}
		return 1
	}
	if lf, ok := v.numeric(); ok {
		if rf, ok := other.numeric(); ok {
			if lf < rf {
				return -1
			} else if lf > rf {
				return 1
			}
			return 0
		}
	}
	if v.kind == KindText && other.kind == KindText {
		if v.s < other.s {
			return -1
		} else if v.s > other.s {
			return 1
		}
		return 0
	}
	if v.kind < other.kind {
		return -1
	}
	return 1
}

// Hash returns a seeded murmur3 hash of the value. Equal values hash
// equally for every seed; distinct seeds give independent partitionings,
// which the grace hash join relies on at each recursion level.
func (v Value) Hash(seed uint32) uint64 {
	h := murmur3.New64WithSeed(seed)
	switch v.kind {
	case KindInt64, KindFloat64:
		// Both numeric kinds hash on the float64 scale they compare on,
		// so 5 and 5.0 land in the same bucket. Negative zero folds to
		// positive zero since the two compare equal.
		f, _ := v.numeric()
		if f == 0 {
			f = 0
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	case KindText:
		h.Write([]byte(v.s))
	}
	return h.Sum64()
}
