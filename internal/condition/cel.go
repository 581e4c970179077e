package condition

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/shinyes/filterdeck/internal/models"
)

const todayVar = "today"

var celIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Expression is a condition chain rendered to CEL and compiled against the
// column declarations of one table.
type Expression struct {
	Source  string
	Columns []string

	program cel.Program
	types   map[string]ColumnType
	eval    *Evaluator
}

// CompileCEL renders the active conditions as a left-folded CEL expression
// and type-checks it. Columns are declared from the evaluator's schema, or
// with the type their first operator implies when it has none.
func (e *Evaluator) CompileCEL(conditions []models.FilterCondition, operators []models.LogicalOp) (*Expression, error) {
	conds, ops := Normalize(conditions, operators)

	types := make(map[string]ColumnType)
	if len(e.schema) > 0 {
		for column, colType := range e.schema {
			types[column] = colType
		}
	} else {
		for _, c := range conds {
			if _, seen := types[c.Column]; !seen {
				types[c.Column] = InferType(Operator(c.Operator))
			}
		}
	}

	declarations := []*exprpb.Decl{decls.NewVar(todayVar, decls.Timestamp)}
	for column, colType := range types {
		if !celIdent.MatchString(column) || column == todayVar {
			return nil, fmt.Errorf("%w: column %q cannot be used in an expression", ErrInvalidCondition, column)
		}
		declarations = append(declarations, decls.NewVar(column, celType(colType)))
	}

	source, err := e.renderChain(conds, ops)
	if err != nil {
		return nil, err
	}

	env, err := cel.NewEnv(cel.Declarations(declarations...))
	if err != nil {
		return nil, fmt.Errorf("build CEL env: %w", err)
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build CEL program: %w", err)
	}

	referenced := map[string]bool{}
	collectIdents(ast.Expr(), referenced)
	delete(referenced, todayVar)
	columns := make([]string, 0, len(referenced))
	for name := range referenced {
		columns = append(columns, name)
	}
	slices.Sort(columns)

	return &Expression{
		Source:  source,
		Columns: columns,
		program: program,
		types:   types,
		eval:    e,
	}, nil
}

// Matches evaluates the expression against one row. Values are coerced the
// same way the evaluator coerces them; a column the row lacks is left unbound.
func (x *Expression) Matches(row map[string]any) (bool, error) {
	if x == nil {
		return true, nil
	}
	today := x.eval.today()
	activation := map[string]any{todayVar: today}
	for _, column := range x.Columns {
		raw, ok := row[column]
		if !ok || raw == nil {
			continue
		}
		switch x.types[column] {
		case TypeDate:
			if d, ok := asDay(raw, x.eval.loc, today); ok {
				activation[column] = d
			}
		case TypeDuration:
			if n, ok := asNumber(raw); ok {
				activation[column] = n
			}
		default:
			if s, ok := asString(raw); ok {
				activation[column] = s
			}
		}
	}

	out, _, err := x.program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("evaluate CEL filter: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter expression must return bool, got %T", out.Value())
	}
	return b, nil
}

func celType(t ColumnType) *exprpb.Type {
	switch t {
	case TypeDate:
		return decls.Timestamp
	case TypeDuration:
		return decls.Double
	default:
		return decls.String
	}
}

func (e *Evaluator) renderChain(conds []models.FilterCondition, ops []models.LogicalOp) (string, error) {
	if len(conds) == 0 {
		return "true", nil
	}
	expr, err := e.renderCondition(conds[0])
	if err != nil {
		return "", err
	}
	for i := 1; i < len(conds); i++ {
		next, err := e.renderCondition(conds[i])
		if err != nil {
			return "", err
		}
		join := "&&"
		if ops[i-1] == models.OpOr {
			join = "||"
		}
		expr = "(" + expr + " " + join + " " + next + ")"
	}
	return expr, nil
}

func (e *Evaluator) renderCondition(c models.FilterCondition) (string, error) {
	colType, ok := e.schema.typeFor(c.Column, Operator(c.Operator))
	if !ok {
		return "", fmt.Errorf("%w: unknown column %q", ErrInvalidCondition, c.Column)
	}
	op := Operator(c.Operator)
	if !typeSpecs[colType].allows(op) {
		return "", fmt.Errorf("%w: operator %q not allowed for %s column %q", ErrInvalidCondition, c.Operator, colType, c.Column)
	}
	if err := typeSpecs[colType].validate(op, c.Value); err != nil {
		return "", err
	}
	col := c.Column

	switch colType {
	case TypeStatus:
		v, _ := asString(c.Value)
		if op == NotEquals {
			return fmt.Sprintf(`%s != "%s"`, col, celQuote(v)), nil
		}
		return fmt.Sprintf(`%s == "%s"`, col, celQuote(v)), nil
	case TypeText:
		v, _ := asString(c.Value)
		pattern := regexp.QuoteMeta(strings.ToLower(v))
		switch op {
		case Equals:
			pattern = "^" + pattern + "$"
		case NotEquals:
			return fmt.Sprintf(`!%s.matches("(?i)^%s$")`, col, celQuote(pattern)), nil
		case StartsWith:
			pattern = "^" + pattern
		case EndsWith:
			pattern = pattern + "$"
		}
		return fmt.Sprintf(`%s.matches("(?i)%s")`, col, celQuote(pattern)), nil
	case TypeDate:
		if op == Between {
			from, to, _ := pairOf(c.Value)
			lo, err := e.dateLiteral(from)
			if err != nil {
				return "", err
			}
			hi, err := e.dateLiteral(to)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("(%s >= %s && %s <= %s)", col, lo, col, hi), nil
		}
		lit, err := e.dateLiteral(c.Value)
		if err != nil {
			return "", err
		}
		cmp := map[Operator]string{Equals: "==", After: ">", Before: "<"}[op]
		return fmt.Sprintf("%s %s %s", col, cmp, lit), nil
	case TypeDuration:
		n, _ := asNumber(c.Value)
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("%w: %v is not a finite number", ErrInvalidCondition, c.Value)
		}
		cmp := map[Operator]string{Equals: "==", GreaterThan: ">", LessThan: "<"}[op]
		return fmt.Sprintf("%s %s %s", col, cmp, doubleLiteral(n)), nil
	}
	return "", fmt.Errorf("%w: unsupported column type %q", ErrInvalidCondition, colType)
}

func (e *Evaluator) dateLiteral(v any) (string, error) {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == TodayToken {
		return todayVar, nil
	}
	d, ok := asDay(v, e.loc, time.Time{})
	if !ok {
		return "", fmt.Errorf("%w: unparseable date %v", ErrInvalidCondition, v)
	}
	return fmt.Sprintf(`timestamp("%s")`, d.Format(time.RFC3339)), nil
}

func doubleLiteral(n float64) string {
	s := strconv.FormatFloat(n, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func celQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func collectIdents(expr *exprpb.Expr, out map[string]bool) {
	if expr == nil {
		return
	}
	if id := expr.GetIdentExpr(); id != nil {
		out[id.Name] = true
		return
	}
	if sel := expr.GetSelectExpr(); sel != nil {
		collectIdents(sel.Operand, out)
		return
	}
	if call := expr.GetCallExpr(); call != nil {
		collectIdents(call.Target, out)
		for _, arg := range call.Args {
			collectIdents(arg, out)
		}
		return
	}
	if list := expr.GetListExpr(); list != nil {
		for _, el := range list.Elements {
			collectIdents(el, out)
		}
	}
}
