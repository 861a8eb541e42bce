package segmentation

import (
	"regexp"
	"strconv"
	"time"

	"github.com/ignite/audience-core/internal/domain"
)

var numericLiteral = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)

// numericBound reads one side of a numeric range. A blank side is open (nil);
// a side that is not a number reports false.
func numericBound(s string) (*float64, bool) {
	if trim(s) == "" {
		return nil, true
	}
	n, ok := parseNumber(s)
	if !ok {
		return nil, false
	}
	return &n, true
}

func parseNumber(s string) (float64, bool) {
	s = trim(s)
	if !numericLiteral.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	s = trim(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// isNumericCondition reports whether any operand of c is a numeric literal.
func isNumericCondition(c domain.Condition) bool {
	for _, v := range []string{c.Value, c.FromValue, c.ToValue} {
		if _, ok := parseNumber(v); ok {
			return true
		}
	}
	return false
}

// Compile turns each condition into one predicate over fieldKey. Unknown
// condition types compile to All.
func Compile(conditions []domain.Condition, fieldKey string) []Predicate {
	out := make([]Predicate, 0, len(conditions))
	for _, c := range conditions {
		out = append(out, compileCondition(c, fieldKey))
	}
	return out
}

// UnknownConditions lists the condition types Compile does not recognise.
func UnknownConditions(filters []domain.FilterSpec) []domain.ConditionType {
	var unknown []domain.ConditionType
	for _, f := range filters {
		for _, c := range f.Conditions {
			if !knownCondition(c.ConditionType) {
				unknown = append(unknown, c.ConditionType)
			}
		}
	}
	return unknown
}

func knownCondition(t domain.ConditionType) bool {
	switch t {
	case domain.CondEquals, domain.CondNotEquals, domain.CondGreaterThan, domain.CondLessThan,
		domain.CondBetween, domain.CondContains, domain.CondNotContains, domain.CondIsTimestamp,
		domain.CondIsNotTimestamp, domain.CondTimestampBefore, domain.CondTimestampAfter,
		domain.CondTimestampBetween:
		return true
	}
	return false
}

func compileCondition(c domain.Condition, key string) Predicate {
	numeric := isNumericCondition(c)

	switch c.ConditionType {
	case domain.CondEquals, domain.CondNotEquals, domain.CondGreaterThan, domain.CondLessThan:
		var num float64
		if numeric {
			n, ok := parseNumber(c.Value)
			if !ok {
				return None{}
			}
			num = n
		}
		text := c.Value
		switch c.ConditionType {
		case domain.CondEquals:
			return Eq{Key: key, Numeric: numeric, Num: num, Text: trim(text)}
		case domain.CondNotEquals:
			return Ne{Key: key, Numeric: numeric, Num: num, Text: trim(text)}
		case domain.CondGreaterThan:
			return Gt{Key: key, Numeric: numeric, Num: num, Text: text}
		default:
			return Lt{Key: key, Numeric: numeric, Num: num, Text: text}
		}

	case domain.CondBetween:
		p := Between{Key: key, Numeric: numeric}
		if numeric {
			from, okFrom := numericBound(c.FromValue)
			to, okTo := numericBound(c.ToValue)
			if !okFrom || !okTo {
				return None{}
			}
			p.FromNum, p.ToNum = from, to
			return p
		}
		if c.FromValue != "" {
			from := c.FromValue
			p.FromText = &from
		}
		if c.ToValue != "" {
			to := c.ToValue
			p.ToText = &to
		}
		return p

	case domain.CondContains:
		return Contains{Key: key, Text: c.Value}
	case domain.CondNotContains:
		return NotContains{Key: key, Text: c.Value}
	case domain.CondIsTimestamp:
		return IsTimestamp{Key: key}
	case domain.CondIsNotTimestamp:
		return IsNotTimestamp{Key: key}

	case domain.CondTimestampBefore:
		t, ok := parseTime(c.Value)
		if !ok {
			return None{}
		}
		return TimestampBefore{Key: key, At: t}
	case domain.CondTimestampAfter:
		t, ok := parseTime(c.Value)
		if !ok {
			return None{}
		}
		return TimestampAfter{Key: key, At: t}
	case domain.CondTimestampBetween:
		from, ok1 := parseTime(c.FromValue)
		to, ok2 := parseTime(c.ToValue)
		if !ok1 || !ok2 {
			return None{}
		}
		return TimestampBetween{Key: key, From: from, To: to}
	}

	return All{}
}

// filterPredicates returns the predicates a filter contributes, before its
// own operator is applied.
func filterPredicates(f domain.FilterSpec) []Predicate {
	if f.HasConditions() {
		return Compile(f.Conditions, f.Key)
	}
	values := make([]string, 0, len(f.Values))
	for _, v := range f.Values {
		if !v.IsNull() {
			values = append(values, v.String())
		}
	}
	return []Predicate{In{Key: f.Key, Values: values}}
}

// Build returns the predicate for a single filter: value membership, or its
// conditions combined by the filter's operator.
func Build(f domain.FilterSpec) Predicate {
	preds := filterPredicates(f)
	if len(preds) == 1 {
		return preds[0]
	}
	if f.Operator == domain.OperatorOr {
		return Or(preds)
	}
	return And(preds)
}

// Combine builds the segment predicate. Every predicate of every AND filter
// is mandatory; the predicates of all OR filters form one alternation that
// must also hold.
func Combine(filters []domain.FilterSpec) Predicate {
	var and And
	var or Or
	for _, f := range filters {
		if f.Operator == domain.OperatorOr {
			or = append(or, filterPredicates(f)...)
		} else {
			and = append(and, filterPredicates(f)...)
		}
	}
	if len(or) > 0 {
		and = append(and, or)
	}
	switch len(and) {
	case 0:
		return All{}
	case 1:
		return and[0]
	}
	return and
}

// Criteria returns the predicate selecting contacts that satisfy every
// selection criterion. No criteria selects everything.
func Criteria(criteria []domain.SelectionCriterion) Predicate {
	if len(criteria) == 0 {
		return All{}
	}
	and := make(And, 0, len(criteria))
	for _, c := range criteria {
		and = append(and, In{Key: c.FilterKey, Values: c.FilterValues})
	}
	return and
}
