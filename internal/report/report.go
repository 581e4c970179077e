package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/shinyes/filterdeck/internal/models"
)

// Report is a table's saved filters rendered as Markdown and HTML.
type Report struct {
	TableID  string
	Markdown string
	HTML     string
	// Sections counts the rendered GFM tables, one per group plus one for
	// ungrouped filters when there are any.
	Sections int
}

type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
	return &Renderer{md: md}
}

func (r *Renderer) Render(tableID string, filters []models.SavedFilter, groups []models.FilterGroup) (Report, error) {
	source := Markdown(tableID, filters, groups)

	doc := r.md.Parser().Parse(text.NewReader([]byte(source)))
	sections := 0
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == east.KindTable {
			sections++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Report{}, err
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, []byte(source), doc); err != nil {
		return Report{}, fmt.Errorf("render report: %w", err)
	}
	return Report{TableID: tableID, Markdown: source, HTML: buf.String(), Sections: sections}, nil
}

// Markdown lays out one section per group in group order, followed by the
// filters that belong to no group.
func Markdown(tableID string, filters []models.SavedFilter, groups []models.FilterGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Saved filters: %s\n\n", escapeInline(tableID))
	if len(filters) == 0 && len(groups) == 0 {
		b.WriteString("No saved filters.\n")
		return b.String()
	}

	for _, group := range groups {
		fmt.Fprintf(&b, "## %s\n\n", escapeInline(group.Name))
		if len(group.Filters) == 0 {
			b.WriteString("_Empty group._\n\n")
			continue
		}
		writeTable(&b, group.Filters)
	}

	ungrouped := make([]models.SavedFilter, 0, len(filters))
	for _, f := range filters {
		if !f.Grouped() {
			ungrouped = append(ungrouped, f)
		}
	}
	if len(ungrouped) > 0 {
		b.WriteString("## Ungrouped\n\n")
		writeTable(&b, ungrouped)
	}
	return b.String()
}

func writeTable(b *strings.Builder, filters []models.SavedFilter) {
	b.WriteString("| Filter | Conditions | Sort | Standard |\n")
	b.WriteString("| --- | --- | --- | :---: |\n")
	for _, f := range filters {
		standard := ""
		if f.IsStandard {
			standard = "yes"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			escapeCell(f.Name),
			escapeCell(DescribeConditions(f.Conditions, f.Operators)),
			escapeCell(describeSort(f.SortDirections)),
			standard,
		)
	}
	b.WriteString("\n")
}

// DescribeConditions renders a chain the way it is evaluated, left to right.
func DescribeConditions(conditions []models.FilterCondition, operators []models.LogicalOp) string {
	if len(conditions) == 0 {
		return "all rows"
	}
	var b strings.Builder
	for i, c := range conditions {
		if i > 0 {
			op := models.OpAnd
			if i-1 < len(operators) && operators[i-1].IsValid() {
				op = operators[i-1]
			}
			fmt.Fprintf(&b, " %s ", op)
		}
		fmt.Fprintf(&b, "%s %s %s", c.Column, c.Operator, describeValue(c.Value))
	}
	return b.String()
}

func describeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "(empty)"
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, describeValue(item))
		}
		return strings.Join(parts, " and ")
	case map[string]any:
		return describeValue(val["from"]) + " and " + describeValue(val["to"])
	case string:
		return fmt.Sprintf("%q", val)
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

func describeSort(sorts []models.SortDirection) string {
	parts := make([]string, 0, len(sorts))
	for _, s := range sorts {
		parts = append(parts, s.Column+" "+strings.ToLower(s.Direction))
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func escapeInline(s string) string {
	r := strings.NewReplacer("*", `\*`, "_", `\_`, "#", `\#`, "`", "\\`")
	return r.Replace(s)
}
