package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/shinyes/filterdeck/internal/models"
)

func openRequests(value string) models.FilterInput {
	return models.FilterInput{
		TableID: "requests-table",
		Name:    "Open",
		Conditions: []models.FilterCondition{
			{Column: "status", Operator: "equals", Value: value},
		},
	}
}

func TestSaveFilter_CreatesThenUpsertsByName(t *testing.T) {
	services := setupTestServices(t)
	ctx := context.Background()
	user := mustCreateUser(t, services.store, "ana01")

	created, isNew, err := services.filters.SaveFilter(ctx, user.ID, openRequests("open"))
	if err != nil {
		t.Fatalf("SaveFilter() error = %v", err)
	}
	if !isNew || created.ID == 0 {
		t.Fatalf("expected a new filter, got %+v (new=%v)", created, isNew)
	}
	if len(created.Operators) != 0 || created.Operators == nil {
		t.Fatalf("expected empty non-nil operators, got %#v", created.Operators)
	}

	updated, isNew, err := services.filters.SaveFilter(ctx, user.ID, openRequests("in_progress"))
	if err != nil {
		t.Fatalf("second SaveFilter() error = %v", err)
	}
	if isNew || updated.ID != created.ID {
		t.Fatalf("expected upsert of filter %d, got %d (new=%v)", created.ID, updated.ID, isNew)
	}
	if updated.Conditions[0].Value != "in_progress" {
		t.Fatalf("conditions not replaced: %+v", updated.Conditions)
	}

	filters, err := services.filters.ListFilters(ctx, user.ID, "requests-table")
	if err != nil {
		t.Fatalf("ListFilters() error = %v", err)
	}
	if len(filters) != 1 {
		t.Fatalf("expected one filter, got %d", len(filters))
	}
}

func TestSaveFilter_ScopedPerUserAndTable(t *testing.T) {
	services := setupTestServices(t)
	ctx := context.Background()
	ana := mustCreateUser(t, services.store, "ana01")
	luis := mustCreateUser(t, services.store, "luis01")

	mustSaveFilter(t, services, ana.ID, openRequests("open"))
	mustSaveFilter(t, services, luis.ID, openRequests("open"))
	todos := openRequests("open")
	todos.TableID = "todos-table"
	mustSaveFilter(t, services, ana.ID, todos)

	filters, err := services.filters.ListFilters(ctx, luis.ID, "requests-table")
	if err != nil {
		t.Fatalf("ListFilters() error = %v", err)
	}
	if len(filters) != 1 || filters[0].UserID != luis.ID {
		t.Fatalf("expected only luis' filter, got %+v", filters)
	}
	if _, err := services.filters.GetFilter(ctx, luis.ID, filters[0].ID+100); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	tables, err := services.filters.ListTables(ctx, ana.ID)
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if strings.Join(tables, ",") != "requests-table,todos-table" {
		t.Fatalf("unexpected tables: %v", tables)
	}
}

func TestSaveFilter_Validation(t *testing.T) {
	services := setupTestServices(t)
	ctx := context.Background()
	user := mustCreateUser(t, services.store, "ana01")

	cases := []struct {
		name  string
		input models.FilterInput
		want  error
	}{
		{"blank name", models.FilterInput{TableID: "requests-table", Name: "  "}, ErrInvalidFilterName},
		{"missing table", models.FilterInput{Name: "Open"}, ErrInvalidTableID},
		{"unknown column", models.FilterInput{TableID: "requests-table", Name: "x", Conditions: []models.FilterCondition{
			{Column: "colour", Operator: "equals", Value: "red"},
		}}, ErrInvalidConditions},
		{"operator not allowed for type", models.FilterInput{TableID: "requests-table", Name: "x", Conditions: []models.FilterCondition{
			{Column: "status", Operator: "contains", Value: "op"},
		}}, ErrInvalidConditions},
		{"bad date", models.FilterInput{TableID: "requests-table", Name: "x", Conditions: []models.FilterCondition{
			{Column: "dueDate", Operator: "after", Value: "tomorrowish"},
		}}, ErrInvalidConditions},
		{"too many operators", models.FilterInput{TableID: "requests-table", Name: "x", Conditions: []models.FilterCondition{
			{Column: "title", Operator: "contains", Value: "a"},
		}, Operators: []models.LogicalOp{models.OpAnd}}, ErrInvalidConditions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := services.filters.SaveFilter(ctx, user.ID, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// conditions still being edited are stored as they are
	draft := models.FilterInput{TableID: "requests-table", Name: "Draft", Conditions: []models.FilterCondition{
		{Column: "title", Operator: "contains", Value: nil},
	}}
	if _, _, err := services.filters.SaveFilter(ctx, user.ID, draft); err != nil {
		t.Fatalf("expected draft condition to be accepted, got %v", err)
	}
}

func TestStandardFilterRules(t *testing.T) {
	services := setupTestServices(t)
	ctx := context.Background()
	user := mustCreateUser(t, services.store, "ana01")

	std := mustSaveFilter(t, services, user.ID, models.FilterInput{TableID: "requests-table", Name: "All", IsStandard: true})
	if !std.IsStandard {
		t.Fatalf("expected standard flag")
	}

	if _, _, err := services.filters.SaveFilter(ctx, user.ID, models.FilterInput{TableID: "requests-table", Name: "All", IsStandard: true}); !errors.Is(err, ErrFilterAlreadyExists) {
		t.Fatalf("expected ErrFilterAlreadyExists for second standard create, got %v", err)
	}
	if _, _, err := services.filters.SaveFilter(ctx, user.ID, models.FilterInput{TableID: "requests-table", Name: "All"}); !errors.Is(err, ErrFilterAlreadyExists) {
		t.Fatalf("expected ErrFilterAlreadyExists when overwriting a standard filter, got %v", err)
	}

	renamed := "Everything"
	if _, err := services.filters.UpdateFilter(ctx, user.ID, std.ID, models.FilterPatch{Name: &renamed}); !errors.Is(err, ErrStandardFilter) {
		t.Fatalf("expected ErrStandardFilter on rename, got %v", err)
	}
	conds := []models.FilterCondition{{Column: "title", Operator: "contains", Value: "x"}}
	if _, err := services.filters.UpdateFilter(ctx, user.ID, std.ID, models.FilterPatch{Conditions: &conds}); !errors.Is(err, ErrStandardFilter) {
		t.Fatalf("expected ErrStandardFilter on condition change, got %v", err)
	}
	sorts := []models.SortDirection{{Column: "createdAt", Direction: "DESC", Priority: 1}}
	sorted, err := services.filters.UpdateFilter(ctx, user.ID, std.ID, models.FilterPatch{SortDirections: &sorts})
	if err != nil {
		t.Fatalf("expected sort change on standard filter to succeed, got %v", err)
	}
	if len(sorted.SortDirections) != 1 {
		t.Fatalf("sort directions not stored: %+v", sorted.SortDirections)
	}
	if err := services.filters.DeleteFilter(ctx, user.ID, std.ID); !errors.Is(err, ErrStandardFilter) {
		t.Fatalf("expected ErrStandardFilter on delete, got %v", err)
	}
}

func TestUpdateFilter_RenameCollisionAndDelete(t *testing.T) {
	services := setupTestServices(t)
	ctx := context.Background()
	user := mustCreateUser(t, services.store, "ana01")

	open := mustSaveFilter(t, services, user.ID, openRequests("open"))
	closed := openRequests("closed")
	closed.Name = "Closed"
	closedFilter := mustSaveFilter(t, services, user.ID, closed)

	clash := "Open"
	if _, err := services.filters.UpdateFilter(ctx, user.ID, closedFilter.ID, models.FilterPatch{Name: &clash}); !errors.Is(err, ErrFilterAlreadyExists) {
		t.Fatalf("expected ErrFilterAlreadyExists, got %v", err)
	}

	ops := []models.LogicalOp{models.OpOr}
	conds := append(open.Conditions, models.FilterCondition{Column: "title", Operator: "startsWith", Value: "Boiler"})
	updated, err := services.filters.UpdateFilter(ctx, user.ID, open.ID, models.FilterPatch{Conditions: &conds, Operators: &ops})
	if err != nil {
		t.Fatalf("UpdateFilter() error = %v", err)
	}
	if len(updated.Conditions) != 2 || updated.Operators[0] != models.OpOr {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := services.filters.DeleteFilter(ctx, user.ID, open.ID); err != nil {
		t.Fatalf("DeleteFilter() error = %v", err)
	}
	if err := services.filters.DeleteFilter(ctx, user.ID, open.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on second delete, got %v", err)
	}
}

func TestExpressionRendersLeftFold(t *testing.T) {
	services := setupTestServices(t)
	ctx := context.Background()
	user := mustCreateUser(t, services.store, "ana01")

	filter := mustSaveFilter(t, services, user.ID, models.FilterInput{
		TableID: "requests-table",
		Name:    "Boilers or open",
		Conditions: []models.FilterCondition{
			{Column: "title", Operator: "contains", Value: "boiler"},
			{Column: "status", Operator: "equals", Value: "open"},
		},
		Operators: []models.LogicalOp{models.OpOr},
	})
	expr, err := services.filters.Expression(ctx, user.ID, filter.ID)
	if err != nil {
		t.Fatalf("Expression() error = %v", err)
	}
	if !strings.Contains(expr, "||") || !strings.Contains(expr, `status == "open"`) {
		t.Fatalf("unexpected expression %q", expr)
	}
}
