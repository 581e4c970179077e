package condition

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type Operator string

const (
	Equals      Operator = "equals"
	NotEquals   Operator = "notEquals"
	Contains    Operator = "contains"
	StartsWith  Operator = "startsWith"
	EndsWith    Operator = "endsWith"
	After       Operator = "after"
	Before      Operator = "before"
	Between     Operator = "between"
	GreaterThan Operator = "greaterThan"
	LessThan    Operator = "lessThan"
)

// TodayToken is stored in date conditions and resolves to the current day
// whenever the condition is evaluated.
const TodayToken = "__TODAY__"

type ColumnType string

const (
	TypeText     ColumnType = "text"
	TypeDate     ColumnType = "date"
	TypeDuration ColumnType = "duration"
	TypeStatus   ColumnType = "status"
)

var ErrInvalidCondition = errors.New("invalid filter condition")

type typeSpec struct {
	operators []Operator
	validate  func(op Operator, value any) error
	match     func(e *Evaluator, op Operator, field, value any) bool
}

var typeSpecs = map[ColumnType]typeSpec{
	TypeText: {
		operators: []Operator{Equals, NotEquals, Contains, StartsWith, EndsWith},
		validate:  validateText,
		match:     matchText,
	},
	TypeStatus: {
		operators: []Operator{Equals, NotEquals},
		validate:  validateText,
		match:     matchStatus,
	},
	TypeDate: {
		operators: []Operator{Equals, After, Before, Between},
		validate:  validateDate,
		match:     matchDate,
	},
	TypeDuration: {
		operators: []Operator{Equals, GreaterThan, LessThan},
		validate:  validateNumber,
		match:     matchNumber,
	},
}

func (t ColumnType) IsValid() bool {
	_, ok := typeSpecs[t]
	return ok
}

// OperatorsFor lists the operators a column of type t accepts, in display order.
func OperatorsFor(t ColumnType) []Operator {
	spec, ok := typeSpecs[t]
	if !ok {
		return nil
	}
	return slices.Clone(spec.operators)
}

func (s typeSpec) allows(op Operator) bool {
	return slices.Contains(s.operators, op)
}

// Schema maps the columns of one table to their semantic type.
type Schema map[string]ColumnType

// TypeOf reports the type of column. A nil schema treats every column as text
// and leaves existence to the accessor.
func (s Schema) TypeOf(column string) (ColumnType, bool) {
	if len(s) == 0 {
		return TypeText, true
	}
	t, ok := s[column]
	return t, ok
}

// InferType guesses a column type from the operator used on it: range
// operators over days mean a date, comparisons mean a duration.
func InferType(op Operator) ColumnType {
	switch op {
	case After, Before, Between:
		return TypeDate
	case GreaterThan, LessThan:
		return TypeDuration
	}
	return TypeText
}

// typeFor is TypeOf for a condition. A table without a schema takes the type
// from the operator so date and duration conditions still work on it.
func (s Schema) typeFor(column string, op Operator) (ColumnType, bool) {
	if len(s) == 0 {
		return InferType(op), true
	}
	return s.TypeOf(column)
}

func (s Schema) Columns() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func validateText(_ Operator, value any) error {
	if _, ok := asString(value); !ok {
		return fmt.Errorf("%w: expected text value, got %T", ErrInvalidCondition, value)
	}
	return nil
}

func validateDate(op Operator, value any) error {
	if op == Between {
		from, to, ok := pairOf(value)
		if !ok {
			return fmt.Errorf("%w: between needs two dates", ErrInvalidCondition)
		}
		if !isDateLiteral(from) || !isDateLiteral(to) {
			return fmt.Errorf("%w: unparseable date range", ErrInvalidCondition)
		}
		return nil
	}
	if !isDateLiteral(value) {
		return fmt.Errorf("%w: unparseable date %v", ErrInvalidCondition, value)
	}
	return nil
}

func validateNumber(_ Operator, value any) error {
	if _, ok := asNumber(value); !ok {
		return fmt.Errorf("%w: expected numeric value, got %v", ErrInvalidCondition, value)
	}
	return nil
}

func isDateLiteral(v any) bool {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == TodayToken {
		return true
	}
	_, ok := asDay(v, time.UTC, time.Time{})
	return ok
}

func asString(v any) (string, bool) {
	switch v.(type) {
	case nil, []any, []string, map[string]any:
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// asNumber coerces v to a float. Durations and duration strings read as hours.
func asNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case nil, bool:
		return 0, false
	case time.Duration:
		return val.Hours(), true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		if f, err := cast.ToFloat64E(s); err == nil {
			return f, true
		}
		if d, err := time.ParseDuration(s); err == nil {
			return d.Hours(), true
		}
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// asDay parses v to midnight of its calendar day in loc. today substitutes
// for TodayToken.
func asDay(v any, loc *time.Location, today time.Time) (time.Time, bool) {
	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		t = *val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		if s == TodayToken {
			if today.IsZero() {
				return time.Time{}, false
			}
			t = today
			break
		}
		parsed, err := cast.ToTimeInDefaultLocationE(s, loc)
		if err != nil {
			return time.Time{}, false
		}
		t = parsed
	default:
		return time.Time{}, false
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
}

// pairOf extracts the bounds of a between value: a two-element list or a
// {"from","to"} object.
func pairOf(v any) (any, any, bool) {
	switch val := v.(type) {
	case []any:
		if len(val) == 2 {
			return val[0], val[1], true
		}
	case []string:
		if len(val) == 2 {
			return val[0], val[1], true
		}
	case []time.Time:
		if len(val) == 2 {
			return val[0], val[1], true
		}
	case map[string]any:
		from, okFrom := val["from"]
		to, okTo := val["to"]
		if okFrom && okTo {
			return from, to, true
		}
	}
	return nil, nil, false
}
