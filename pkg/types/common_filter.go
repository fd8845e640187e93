package types

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq        CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq     CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt        CommonFilterOperator = "lt"
	CommonFilterOperatorLte       CommonFilterOperator = "lte"
	CommonFilterOperatorGt        CommonFilterOperator = "gt"
	CommonFilterOperatorGte       CommonFilterOperator = "gte"
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

// CommonFilter is one column predicate of an admin list request.
type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Validate checks f against the columns a caller may filter on. date_range
// values are parsed in place so Build can bind them as times.
func (f *CommonFilter) Validate(columns []string) error {
	allowed := false
	for _, c := range columns {
		if c == f.Field {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("cannot filter on %q", f.Field)
	}
	if len(f.Values) == 0 {
		return fmt.Errorf("filter on %q has no values", f.Field)
	}
	switch f.Operator {
	case CommonFilterOperatorEq, CommonFilterOperatorNotEq,
		CommonFilterOperatorLt, CommonFilterOperatorLte,
		CommonFilterOperatorGt, CommonFilterOperatorGte,
		CommonFilterOperatorIn:
		return nil
	case CommonFilterOperatorRange:
		if len(f.Values) != 2 {
			return fmt.Errorf("range on %q needs 2 values, got %d", f.Field, len(f.Values))
		}
		return nil
	case CommonFilterOperatorDateRange:
		if len(f.Values) != 2 {
			return fmt.Errorf("date_range on %q needs 2 values, got %d", f.Field, len(f.Values))
		}
		for i, v := range f.Values {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("date_range on %q: value %d is not a string", f.Field, i)
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("date_range on %q: %w", f.Field, err)
			}
			f.Values[i] = t.UTC()
		}
		return nil
	default:
		return fmt.Errorf("unsupported operator %q", f.Operator)
	}
}

// Build writes the predicate. Call Validate first.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}
	col := clause.Column{Name: f.Field}
	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		clause.And(clause.Gte{Column: col, Value: f.Values[0]}, clause.Lte{Column: col, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorDateRange:
		// half-open: [from, to)
		clause.And(clause.Gte{Column: col, Value: f.Values[0]}, clause.Lt{Column: col, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: col, Values: f.Values}.Build(builder)
	}
}
