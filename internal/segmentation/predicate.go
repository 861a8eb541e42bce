package segmentation

import (
	"math"
	"strings"
	"time"

	"github.com/ignite/audience-core/internal/domain"
)

// Predicate is a boolean test over one contact's attributes. The set of
// implementations is closed; QueryBuilder translates every variant to SQL.
type Predicate interface {
	Match(attrs domain.Attributes) bool
	predicate()
}

// All matches every contact.
type All struct{}

// None matches no contact.
type None struct{}

// Eq compares the field for equality. Numeric compares parsed doubles,
// otherwise trimmed strings.
type Eq struct {
	Key     string
	Numeric bool
	Num     float64
	Text    string
}

// Ne is the complement of Eq, except that a numeric comparison against a
// non-numeric field never matches.
type Ne struct {
	Key     string
	Numeric bool
	Num     float64
	Text    string
}

// Gt matches fields greater than the operand. Numeric coerces the field to
// an integer and treats non-numeric fields as 0.
type Gt struct {
	Key     string
	Numeric bool
	Num     float64
	Text    string
}

// Lt matches fields less than the operand, with Gt's coercion rules.
type Lt struct {
	Key     string
	Numeric bool
	Num     float64
	Text    string
}

// Between is an inclusive range; a nil bound is open.
type Between struct {
	Key      string
	Numeric  bool
	FromNum  *float64
	ToNum    *float64
	FromText *string
	ToText   *string
}

// Contains is a case-insensitive substring test.
type Contains struct {
	Key  string
	Text string
}

// NotContains is the exact negation of Contains.
type NotContains struct {
	Key  string
	Text string
}

// IsTimestamp matches fields stored as dates.
type IsTimestamp struct{ Key string }

// IsNotTimestamp matches fields that are absent or not stored as dates.
type IsNotTimestamp struct{ Key string }

// TimestampBefore matches date fields strictly before At.
type TimestampBefore struct {
	Key string
	At  time.Time
}

// TimestampAfter matches date fields strictly after At.
type TimestampAfter struct {
	Key string
	At  time.Time
}

// TimestampBetween matches date fields within [From, To].
type TimestampBetween struct {
	Key  string
	From time.Time
	To   time.Time
}

// In matches fields whose canonical text is one of Values.
type In struct {
	Key    string
	Values []string
}

// Not inverts P. Contacts for which P cannot be evaluated count as not
// matching P.
type Not struct{ P Predicate }

// And matches when every operand matches; an empty And matches everything.
type And []Predicate

// Or matches when any operand matches; an empty Or matches nothing.
type Or []Predicate

func (All) predicate()              {}
func (None) predicate()             {}
func (Eq) predicate()               {}
func (Ne) predicate()               {}
func (Gt) predicate()               {}
func (Lt) predicate()               {}
func (Between) predicate()          {}
func (Contains) predicate()         {}
func (NotContains) predicate()      {}
func (IsTimestamp) predicate()      {}
func (IsNotTimestamp) predicate()   {}
func (TimestampBefore) predicate()  {}
func (TimestampAfter) predicate()   {}
func (TimestampBetween) predicate() {}
func (In) predicate()               {}
func (Not) predicate()              {}
func (And) predicate()              {}
func (Or) predicate()               {}

func (All) Match(domain.Attributes) bool  { return true }
func (None) Match(domain.Attributes) bool { return false }

func (p Eq) Match(attrs domain.Attributes) bool {
	if p.Numeric {
		n, ok := fieldNumber(attrs, p.Key)
		return ok && n == p.Num
	}
	s, ok := fieldText(attrs, p.Key)
	return ok && trim(s) == p.Text
}

func (p Ne) Match(attrs domain.Attributes) bool {
	if p.Numeric {
		n, ok := fieldNumber(attrs, p.Key)
		return ok && n != p.Num
	}
	s, ok := fieldText(attrs, p.Key)
	return !ok || trim(s) != p.Text
}

func (p Gt) Match(attrs domain.Attributes) bool {
	if p.Numeric {
		return fieldInteger(attrs, p.Key) > p.Num
	}
	s, ok := fieldText(attrs, p.Key)
	return ok && s > p.Text
}

func (p Lt) Match(attrs domain.Attributes) bool {
	if p.Numeric {
		return fieldInteger(attrs, p.Key) < p.Num
	}
	s, ok := fieldText(attrs, p.Key)
	return ok && s < p.Text
}

func (p Between) Match(attrs domain.Attributes) bool {
	if p.Numeric {
		n := fieldInteger(attrs, p.Key)
		if p.FromNum != nil && n < *p.FromNum {
			return false
		}
		if p.ToNum != nil && n > *p.ToNum {
			return false
		}
		return true
	}
	s, ok := fieldText(attrs, p.Key)
	if !ok {
		return false
	}
	if p.FromText != nil && s < *p.FromText {
		return false
	}
	if p.ToText != nil && s > *p.ToText {
		return false
	}
	return true
}

func (p Contains) Match(attrs domain.Attributes) bool {
	s, ok := fieldText(attrs, p.Key)
	return ok && strings.Contains(strings.ToLower(s), strings.ToLower(p.Text))
}

func (p NotContains) Match(attrs domain.Attributes) bool {
	return !Contains(p).Match(attrs)
}

func (p IsTimestamp) Match(attrs domain.Attributes) bool {
	_, ok := fieldTime(attrs, p.Key)
	return ok
}

func (p IsNotTimestamp) Match(attrs domain.Attributes) bool {
	_, ok := fieldTime(attrs, p.Key)
	return !ok
}

func (p TimestampBefore) Match(attrs domain.Attributes) bool {
	t, ok := fieldTime(attrs, p.Key)
	return ok && t.Before(p.At)
}

func (p TimestampAfter) Match(attrs domain.Attributes) bool {
	t, ok := fieldTime(attrs, p.Key)
	return ok && t.After(p.At)
}

func (p TimestampBetween) Match(attrs domain.Attributes) bool {
	t, ok := fieldTime(attrs, p.Key)
	return ok && !t.Before(p.From) && !t.After(p.To)
}

func (p In) Match(attrs domain.Attributes) bool {
	s, ok := fieldText(attrs, p.Key)
	if !ok {
		return false
	}
	for _, v := range p.Values {
		if v == s {
			return true
		}
	}
	return false
}

func (p Not) Match(attrs domain.Attributes) bool { return !p.P.Match(attrs) }

func (p And) Match(attrs domain.Attributes) bool {
	for _, q := range p {
		if !q.Match(attrs) {
			return false
		}
	}
	return true
}

func (p Or) Match(attrs domain.Attributes) bool {
	for _, q := range p {
		if q.Match(attrs) {
			return true
		}
	}
	return false
}

// trimSet is shared with the attr_* SQL functions so both evaluation paths
// trim the same characters.
const trimSet = " \t\r\n"

func trim(s string) string { return strings.Trim(s, trimSet) }

func fieldText(attrs domain.Attributes, key string) (string, bool) {
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	return v.String(), true
}

// fieldNumber coerces the field to a double. Number values are used as is,
// strings must look like a decimal literal.
func fieldNumber(attrs domain.Attributes, key string) (float64, bool) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch v.Kind() {
	case domain.KindNumber:
		n, _ := v.Float()
		return n, true
	case domain.KindString:
		return parseNumber(v.String())
	}
	return 0, false
}

// fieldInteger truncates the coerced field toward zero; anything that is
// not numeric counts as 0.
func fieldInteger(attrs domain.Attributes, key string) float64 {
	n, ok := fieldNumber(attrs, key)
	if !ok {
		return 0
	}
	return math.Trunc(n)
}

func fieldTime(attrs domain.Attributes, key string) (time.Time, bool) {
	v, ok := attrs.Get(key)
	if !ok {
		return time.Time{}, false
	}
	return v.Time()
}
