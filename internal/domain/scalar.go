package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ScalarKind is the storage type of an attribute value.
type ScalarKind int

const (
	KindNull ScalarKind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// Scalar is a single client-defined attribute value. Contacts carry an open
// set of these, keyed by whatever column names the tenant uploads.
type Scalar struct {
	kind ScalarKind
	s    string
	n    float64
	b    bool
	t    time.Time
}

// String returns a string scalar.
func String(s string) Scalar { return Scalar{kind: KindString, s: s} }

// Number returns a numeric scalar.
func Number(n float64) Scalar { return Scalar{kind: KindNumber, n: n} }

// Bool returns a boolean scalar.
func Bool(b bool) Scalar { return Scalar{kind: KindBool, b: b} }

// Time returns a date scalar normalised to UTC.
func Time(t time.Time) Scalar { return Scalar{kind: KindTime, t: t.UTC()} }

// Null returns the empty scalar.
func Null() Scalar { return Scalar{} }

func (v Scalar) Kind() ScalarKind { return v.kind }

func (v Scalar) IsNull() bool { return v.kind == KindNull }

// Float returns the numeric value for number scalars.
func (v Scalar) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// Time returns the time value for time scalars.
func (v Scalar) Time() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// String returns the canonical text form used for string comparisons,
// grouping and membership tests.
func (v Scalar) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Equal reports whether two scalars have the same kind and value.
func (v Scalar) Equal(o Scalar) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindTime:
		return v.t.Equal(o.t)
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	}
	return true
}

type dateEnvelope struct {
	Date string `json:"$date"`
}

// MarshalJSON encodes times as {"$date": "..."} so the date type survives a
// JSONB round trip; everything else is a plain JSON value.
func (v Scalar) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		return json.Marshal(v.n)
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(dateEnvelope{Date: v.t.Format(time.RFC3339Nano)})
	default:
		return []byte("null"), nil
	}
}

func (v *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{':
		var env dateEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, env.Date)
		if err != nil {
			return fmt.Errorf("invalid $date value %q: %w", env.Date, err)
		}
		*v = Time(t)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported attribute value %s", string(data))
		}
		*v = Number(n)
	}
	return nil
}

// Attributes is the open, client-defined part of a contact.
type Attributes map[string]Scalar

// Get returns the value at key; absent keys report ok=false.
func (a Attributes) Get(key string) (Scalar, bool) {
	v, ok := a[key]
	if !ok || v.IsNull() {
		return Scalar{}, false
	}
	return v, true
}

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
