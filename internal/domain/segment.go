package domain

import "time"

// ConditionType enumerates the comparison operators of a filter condition.
type ConditionType string

const (
	CondEquals           ConditionType = "EQUALS"
	CondNotEquals        ConditionType = "NOT_EQUALS"
	CondGreaterThan      ConditionType = "GREATER_THAN"
	CondLessThan         ConditionType = "LESS_THAN"
	CondBetween          ConditionType = "BETWEEN"
	CondContains         ConditionType = "CONTAINS"
	CondNotContains      ConditionType = "NOT_CONTAINS"
	CondIsTimestamp      ConditionType = "IS_TIMESTAMP"
	CondIsNotTimestamp   ConditionType = "IS_NOT_TIMESTAMP"
	CondTimestampBefore  ConditionType = "TIMESTAMP_BEFORE"
	CondTimestampAfter   ConditionType = "TIMESTAMP_AFTER"
	CondTimestampBetween ConditionType = "TIMESTAMP_BETWEEN"
)

// FilterOperator combines the conditions of one filter.
type FilterOperator string

const (
	OperatorAnd FilterOperator = "AND"
	OperatorOr  FilterOperator = "OR"
)

// Condition is one comparison against the filter's key.
type Condition struct {
	ConditionType ConditionType `json:"conditionType" validate:"required"`
	Value         string        `json:"value,omitempty"`
	FromValue     string        `json:"fromValue,omitempty"`
	ToValue       string        `json:"toValue,omitempty"`
}

// FilterSpec is either a value-membership filter (Values) or a
// condition-list filter (Conditions) over a single attribute key.
type FilterSpec struct {
	Key        string         `json:"key" validate:"required"`
	Values     []Scalar       `json:"values,omitempty"`
	Conditions []Condition    `json:"conditions,omitempty" validate:"omitempty,dive"`
	Operator   FilterOperator `json:"operator" validate:"required,oneof=AND OR"`
}

// HasConditions reports whether the filter is a condition-list filter.
func (f FilterSpec) HasConditions() bool { return len(f.Conditions) > 0 }

// FilterCount is the audience size for one filter, or for the combined
// segment when Key is SegmentCountKey.
type FilterCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// SegmentCountKey keys the combined count in CountFilters results.
const SegmentCountKey = "segmentCount"

// Segment is a saved, named filter combination.
type Segment struct {
	ID         string       `json:"id" db:"id"`
	CompanyID  string       `json:"companyId" db:"company_id"`
	Name       string       `json:"name" db:"name"`
	Filters    []FilterSpec `json:"filters" db:"filters"`
	UsersCount int64        `json:"usersCount" db:"-"`
	CreatedAt  time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time    `json:"updatedAt" db:"updated_at"`
}
