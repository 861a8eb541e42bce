package segmentation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-core/internal/domain"
)

func attrs(kv ...interface{}) domain.Attributes {
	out := domain.Attributes{}
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		switch v := kv[i+1].(type) {
		case string:
			out[key] = domain.String(v)
		case float64:
			out[key] = domain.Number(v)
		case int:
			out[key] = domain.Number(float64(v))
		case bool:
			out[key] = domain.Bool(v)
		case time.Time:
			out[key] = domain.Time(v)
		case nil:
			out[key] = domain.Null()
		}
	}
	return out
}

func cond(t domain.ConditionType, v string) domain.Condition {
	return domain.Condition{ConditionType: t, Value: v}
}

func TestCompile_Conditions(t *testing.T) {
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		cond  domain.Condition
		attrs domain.Attributes
		want  bool
	}{
		{"numeric equals string field", cond(domain.CondEquals, "5"), attrs("k", "5.0"), true},
		{"numeric equals number field", cond(domain.CondEquals, "5.0"), attrs("k", 5), true},
		{"numeric equals padded field", cond(domain.CondEquals, "5"), attrs("k", " 5 "), true},
		{"numeric equals non-numeric field", cond(domain.CondEquals, "5"), attrs("k", "five"), false},
		{"numeric equals absent field", cond(domain.CondEquals, "5"), attrs(), false},
		{"numeric not equals differs", cond(domain.CondNotEquals, "5"), attrs("k", "6"), true},
		{"numeric not equals non-numeric field", cond(domain.CondNotEquals, "5"), attrs("k", "x"), false},
		{"string equals trims both sides", cond(domain.CondEquals, " gold "), attrs("k", "gold  "), true},
		{"string equals is case sensitive", cond(domain.CondEquals, "gold"), attrs("k", "Gold"), false},
		{"string not equals absent field", cond(domain.CondNotEquals, "gold"), attrs(), true},
		{"string not equals same value", cond(domain.CondNotEquals, "gold"), attrs("k", "gold"), false},
		{"greater than truncates field", cond(domain.CondGreaterThan, "26"), attrs("k", "26.9"), false},
		{"greater than numeric field", cond(domain.CondGreaterThan, "26"), attrs("k", "30"), true},
		{"greater than treats text as zero", cond(domain.CondGreaterThan, "-1"), attrs("k", "n/a"), true},
		{"greater than treats absent as zero", cond(domain.CondGreaterThan, "0"), attrs(), false},
		{"less than treats absent as zero", cond(domain.CondLessThan, "1"), attrs(), true},
		{"string greater than", cond(domain.CondGreaterThan, "b"), attrs("k", "c"), true},
		{"string greater than absent", cond(domain.CondGreaterThan, "b"), attrs(), false},
		{"contains ignores case", cond(domain.CondContains, "GMAIL"), attrs("k", "a@gmail.com"), true},
		{"contains absent", cond(domain.CondContains, "x"), attrs(), false},
		{"not contains absent", cond(domain.CondNotContains, "x"), attrs(), true},
		{"not contains present", cond(domain.CondNotContains, "gmail"), attrs("k", "a@Gmail.com"), false},
		{"is timestamp on date", cond(domain.CondIsTimestamp, ""), attrs("k", jan), true},
		{"is timestamp on date-like string", cond(domain.CondIsTimestamp, ""), attrs("k", "2024-01-15"), false},
		{"is not timestamp on absent", cond(domain.CondIsNotTimestamp, ""), attrs(), true},
		{"timestamp before", cond(domain.CondTimestampBefore, "2024-02-01"), attrs("k", jan), true},
		{"timestamp after", cond(domain.CondTimestampAfter, "2024-02-01"), attrs("k", jan), false},
		{"timestamp before unparseable value", cond(domain.CondTimestampBefore, "soon"), attrs("k", jan), false},
		{"unknown type matches everything", cond("STARTS_WITH", "x"), attrs(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preds := Compile([]domain.Condition{tt.cond}, "k")
			require.Len(t, preds, 1)
			assert.Equal(t, tt.want, preds[0].Match(tt.attrs))
		})
	}
}

func TestCompile_Between(t *testing.T) {
	numeric := Compile([]domain.Condition{{ConditionType: domain.CondBetween, FromValue: "18", ToValue: "30"}}, "age")[0]
	assert.True(t, numeric.Match(attrs("age", "18")))
	assert.True(t, numeric.Match(attrs("age", "30.7")))
	assert.False(t, numeric.Match(attrs("age", "31")))
	assert.False(t, numeric.Match(attrs("age", "unknown")))

	openEnded := Compile([]domain.Condition{{ConditionType: domain.CondBetween, FromValue: "-5"}}, "age")[0]
	assert.True(t, openEnded.Match(attrs()))

	garbled := Compile([]domain.Condition{{ConditionType: domain.CondBetween, FromValue: "18", ToValue: "abc"}}, "age")[0]
	assert.Equal(t, None{}, garbled)
	assert.False(t, garbled.Match(attrs("age", "40")))
	assert.False(t, garbled.Match(attrs()))

	text := Compile([]domain.Condition{{ConditionType: domain.CondBetween, FromValue: "b", ToValue: "d"}}, "tier")[0]
	assert.True(t, text.Match(attrs("tier", "c")))
	assert.False(t, text.Match(attrs("tier", "e")))
	assert.False(t, text.Match(attrs()))

	ts := Compile([]domain.Condition{{
		ConditionType: domain.CondTimestampBetween,
		FromValue:     "2024-01-01",
		ToValue:       "2024-01-31T23:59:59Z",
	}}, "signup")[0]
	assert.True(t, ts.Match(attrs("signup", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	assert.False(t, ts.Match(attrs("signup", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))))
}

func TestBuild_ValueMembership(t *testing.T) {
	p := Build(domain.FilterSpec{
		Key:      "tier",
		Values:   []domain.Scalar{domain.String("gold"), domain.Number(3)},
		Operator: domain.OperatorAnd,
	})
	assert.True(t, p.Match(attrs("tier", "gold")))
	assert.True(t, p.Match(attrs("tier", 3)))
	assert.False(t, p.Match(attrs("tier", "silver")))

	empty := Build(domain.FilterSpec{Key: "tier", Operator: domain.OperatorAnd})
	assert.False(t, empty.Match(attrs("tier", "gold")))
}

func TestBuild_Operator(t *testing.T) {
	f := domain.FilterSpec{
		Key: "email",
		Conditions: []domain.Condition{
			cond(domain.CondContains, "gmail"),
			cond(domain.CondContains, "yahoo"),
		},
		Operator: domain.OperatorOr,
	}
	assert.True(t, Build(f).Match(attrs("email", "a@yahoo.com")))

	f.Operator = domain.OperatorAnd
	assert.False(t, Build(f).Match(attrs("email", "a@yahoo.com")))
}

func TestCombine_AgeScenario(t *testing.T) {
	contacts := []domain.Attributes{
		attrs("email", "a@x.com", "age", "30"),
		attrs("email", "b@x.com", "age", "25"),
	}
	p := Combine([]domain.FilterSpec{{
		Key:        "age",
		Operator:   domain.OperatorAnd,
		Conditions: []domain.Condition{cond(domain.CondGreaterThan, "26")},
	}})

	matched := 0
	for _, c := range contacts {
		if p.Match(c) {
			matched++
		}
	}
	assert.Equal(t, 1, matched)
}

func TestCombine_Buckets(t *testing.T) {
	filters := []domain.FilterSpec{
		{Key: "country", Values: []domain.Scalar{domain.String("US")}, Operator: domain.OperatorAnd},
		{Key: "tier", Values: []domain.Scalar{domain.String("gold")}, Operator: domain.OperatorOr},
		{Key: "tier", Values: []domain.Scalar{domain.String("silver")}, Operator: domain.OperatorOr},
	}
	p := Combine(filters)

	assert.True(t, p.Match(attrs("country", "US", "tier", "silver")))
	assert.False(t, p.Match(attrs("country", "CA", "tier", "gold")))
	assert.False(t, p.Match(attrs("country", "US", "tier", "bronze")))

	assert.Equal(t, All{}, Combine(nil))
}

func TestUnknownConditions(t *testing.T) {
	unknown := UnknownConditions([]domain.FilterSpec{{
		Key:        "k",
		Operator:   domain.OperatorAnd,
		Conditions: []domain.Condition{cond(domain.CondEquals, "1"), cond("REGEX", ".*")},
	}})
	assert.Equal(t, []domain.ConditionType{"REGEX"}, unknown)
}

func TestValidateFilters(t *testing.T) {
	require.NoError(t, ValidateFilters([]domain.FilterSpec{{Key: "k", Operator: domain.OperatorOr}}))

	err := ValidateFilters([]domain.FilterSpec{{Key: "", Operator: "XOR"}})
	require.ErrorIs(t, err, ErrInvalidFilter)
	assert.Contains(t, err.Error(), "Key required")
	assert.Contains(t, err.Error(), "Operator oneof")

	err = ValidateFilters([]domain.FilterSpec{{
		Key:        "k",
		Operator:   domain.OperatorAnd,
		Conditions: []domain.Condition{{Value: "x"}},
	}})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}
