package condition

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinyes/filterdeck/internal/models"
)

// Accessor returns the value of column for one row, and false when the row
// has no such column.
type Accessor func(column string) (any, bool)

// MapAccessor reads columns out of a decoded JSON object.
func MapAccessor(row map[string]any) Accessor {
	return func(column string) (any, bool) {
		v, ok := row[column]
		return v, ok
	}
}

type Option func(*Evaluator)

func WithSchema(schema Schema) Option {
	return func(e *Evaluator) { e.schema = schema }
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// ColumnMatcher overrides matching for one column. Returning handled=false
// falls back to the type-based match.
type ColumnMatcher func(get Accessor, c models.FilterCondition) (matched, handled bool)

func WithColumnMatcher(column string, m ColumnMatcher) Option {
	return func(e *Evaluator) {
		if e.matchers == nil {
			e.matchers = make(map[string]ColumnMatcher)
		}
		e.matchers[column] = m
	}
}

func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// Evaluator matches rows against a condition chain. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	schema   Schema
	matchers map[string]ColumnMatcher
	now      func() time.Time
	loc      *time.Location
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Schema() Schema {
	return e.schema
}

// IsActive reports whether c takes part in evaluation.
func IsActive(c models.FilterCondition) bool {
	if strings.TrimSpace(c.Column) == "" {
		return false
	}
	switch v := c.Value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	}
	return true
}

// Normalize drops inactive conditions together with the operator that joined
// them and fills missing operators with AND. Each kept condition keeps the
// operator that preceded it, so the result always satisfies
// len(ops) == len(conds)-1.
func Normalize(conditions []models.FilterCondition, operators []models.LogicalOp) ([]models.FilterCondition, []models.LogicalOp) {
	conds := make([]models.FilterCondition, 0, len(conditions))
	ops := make([]models.LogicalOp, 0, len(operators))
	for i, c := range conditions {
		if !IsActive(c) {
			continue
		}
		if len(conds) > 0 {
			ops = append(ops, operatorAt(operators, i-1))
		}
		conds = append(conds, c)
	}
	return conds, ops
}

func operatorAt(operators []models.LogicalOp, i int) models.LogicalOp {
	if i < 0 || i >= len(operators) {
		return models.OpAnd
	}
	return models.ParseLogicalOp(string(operators[i]))
}

// Evaluate folds the active conditions strictly left to right. An empty
// chain matches every row.
func (e *Evaluator) Evaluate(get Accessor, conditions []models.FilterCondition, operators []models.LogicalOp) bool {
	conds, ops := Normalize(conditions, operators)
	return e.fold(get, conds, ops)
}

// Predicate normalizes once and returns a reusable row test.
func (e *Evaluator) Predicate(conditions []models.FilterCondition, operators []models.LogicalOp) func(Accessor) bool {
	conds, ops := Normalize(conditions, operators)
	return func(get Accessor) bool {
		return e.fold(get, conds, ops)
	}
}

func (e *Evaluator) fold(get Accessor, conds []models.FilterCondition, ops []models.LogicalOp) bool {
	if len(conds) == 0 {
		return true
	}
	result := e.Match(get, conds[0])
	for i := 1; i < len(conds); i++ {
		next := e.Match(get, conds[i])
		if ops[i-1] == models.OpOr {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

// Match tests a single condition. Anything it cannot interpret fails closed.
func (e *Evaluator) Match(get Accessor, c models.FilterCondition) bool {
	if get == nil {
		return false
	}
	if m, ok := e.matchers[c.Column]; ok {
		if matched, handled := m(get, c); handled {
			return matched
		}
	}
	colType, ok := e.schema.typeFor(c.Column, Operator(c.Operator))
	if !ok {
		return false
	}
	spec, ok := typeSpecs[colType]
	if !ok {
		return false
	}
	op := Operator(c.Operator)
	if !spec.allows(op) {
		return false
	}
	field, ok := get(c.Column)
	if !ok {
		return false
	}
	if field == nil {
		return op == NotEquals
	}
	return spec.match(e, op, field, c.Value)
}

func (e *Evaluator) today() time.Time {
	t := e.now().In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

func matchText(_ *Evaluator, op Operator, field, value any) bool {
	f, ok := asString(field)
	if !ok {
		return false
	}
	v, ok := asString(value)
	if !ok {
		return false
	}
	f, v = strings.ToLower(f), strings.ToLower(v)
	switch op {
	case Equals:
		return f == v
	case NotEquals:
		return f != v
	case Contains:
		return strings.Contains(f, v)
	case StartsWith:
		return strings.HasPrefix(f, v)
	case EndsWith:
		return strings.HasSuffix(f, v)
	}
	return false
}

func matchStatus(_ *Evaluator, op Operator, field, value any) bool {
	f, ok := asString(field)
	if !ok {
		return false
	}
	v, ok := asString(value)
	if !ok {
		return false
	}
	switch op {
	case Equals:
		return f == v
	case NotEquals:
		return f != v
	}
	return false
}

func matchDate(e *Evaluator, op Operator, field, value any) bool {
	today := e.today()
	f, ok := asDay(field, e.loc, today)
	if !ok {
		return false
	}
	if op == Between {
		rawFrom, rawTo, ok := pairOf(value)
		if !ok {
			return false
		}
		from, okFrom := asDay(rawFrom, e.loc, today)
		to, okTo := asDay(rawTo, e.loc, today)
		if !okFrom || !okTo {
			return false
		}
		return !f.Before(from) && !f.After(to)
	}
	v, ok := asDay(value, e.loc, today)
	if !ok {
		return false
	}
	switch op {
	case Equals:
		return f.Equal(v)
	case After:
		return f.After(v)
	case Before:
		return f.Before(v)
	}
	return false
}

func matchNumber(_ *Evaluator, op Operator, field, value any) bool {
	f, ok := asNumber(field)
	if !ok {
		return false
	}
	v, ok := asNumber(value)
	if !ok {
		return false
	}
	switch op {
	case Equals:
		return f == v
	case GreaterThan:
		return f > v
	case LessThan:
		return f < v
	}
	return false
}

// FilterRows keeps the rows for which keep returns true.
func FilterRows[T any](rows []T, access func(T) Accessor, keep func(Accessor) bool) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if keep(access(row)) {
			out = append(out, row)
		}
	}
	return out
}

// Validate checks a chain against schema: every active condition must name a
// known column, use an operator legal for its type and carry a parseable value.
func Validate(schema Schema, conditions []models.FilterCondition, operators []models.LogicalOp) error {
	if len(conditions) == 0 && len(operators) > 0 {
		return fmt.Errorf("%w: operators without conditions", ErrInvalidCondition)
	}
	if len(conditions) > 0 && len(operators) > len(conditions)-1 {
		return fmt.Errorf("%w: %d operators for %d conditions", ErrInvalidCondition, len(operators), len(conditions))
	}
	for i, op := range operators {
		if !op.IsValid() {
			return fmt.Errorf("%w: operator %d is %q", ErrInvalidCondition, i, op)
		}
	}
	for i, c := range conditions {
		if strings.TrimSpace(c.Column) == "" {
			continue
		}
		colType, ok := schema.typeFor(c.Column, Operator(c.Operator))
		if !ok {
			return fmt.Errorf("%w: condition %d: unknown column %q", ErrInvalidCondition, i, c.Column)
		}
		spec := typeSpecs[colType]
		op := Operator(c.Operator)
		if !spec.allows(op) {
			return fmt.Errorf("%w: condition %d: operator %q not allowed for %s column %q", ErrInvalidCondition, i, c.Operator, colType, c.Column)
		}
		if !IsActive(c) {
			continue
		}
		if err := spec.validate(op, c.Value); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}
