package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/store"
)

var (
	ErrInvalidFilterName   = errors.New("invalid filter name")
	ErrInvalidTableID      = errors.New("invalid table id")
	ErrInvalidConditions   = errors.New("invalid filter conditions")
	ErrStandardFilter      = errors.New("standard filters cannot be changed")
	ErrFilterAlreadyExists = errors.New("filter already exists")
)

const maxFilterNameLength = 128

// FilterService owns the saved filters of each user. Conditions are checked
// against the table catalog and compiled to CEL before they are stored.
type FilterService struct {
	store   *store.SQLStore
	catalog condition.Catalog
}

func NewFilterService(s *store.SQLStore, catalog condition.Catalog) *FilterService {
	if catalog == nil {
		catalog = condition.DefaultCatalog()
	}
	return &FilterService{store: s, catalog: catalog}
}

func (s *FilterService) Catalog() condition.Catalog {
	return s.catalog
}

func (s *FilterService) ListFilters(ctx context.Context, userID int64, tableID string) ([]models.SavedFilter, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return nil, ErrInvalidTableID
	}
	return s.store.ListFiltersByTable(ctx, userID, tableID)
}

func (s *FilterService) ListTables(ctx context.Context, userID int64) ([]string, error) {
	return s.store.ListFilterTables(ctx, userID)
}

func (s *FilterService) GetFilter(ctx context.Context, userID int64, filterID int64) (models.SavedFilter, error) {
	return s.store.GetFilterByID(ctx, userID, filterID)
}

// SaveFilter creates a filter, or replaces the body of the user's filter with
// the same name on the same table. Standard filters never take part in that
// upsert: a name clash involving one fails with ErrFilterAlreadyExists.
func (s *FilterService) SaveFilter(ctx context.Context, userID int64, input models.FilterInput) (models.SavedFilter, bool, error) {
	tableID := strings.TrimSpace(input.TableID)
	if tableID == "" {
		return models.SavedFilter{}, false, ErrInvalidTableID
	}
	name, err := normalizeFilterName(input.Name)
	if err != nil {
		return models.SavedFilter{}, false, err
	}
	conditions := nonNil(input.Conditions)
	operators := nonNil(input.Operators)
	if err := s.validate(tableID, conditions, operators); err != nil {
		return models.SavedFilter{}, false, err
	}

	existing, err := s.store.GetFilterByName(ctx, userID, tableID, name)
	switch {
	case err == nil:
		if input.IsStandard || existing.IsStandard {
			return models.SavedFilter{}, false, fmt.Errorf("%w: %q", ErrFilterAlreadyExists, name)
		}
		sorts := nonNil(input.SortDirections)
		updated, err := s.store.UpdateFilter(ctx, userID, existing.ID, store.FilterUpdate{
			Conditions:     &conditions,
			Operators:      &operators,
			SortDirections: &sorts,
		})
		return updated, false, err
	case !errors.Is(err, sql.ErrNoRows):
		return models.SavedFilter{}, false, err
	}

	created, err := s.store.CreateFilter(ctx, userID, store.FilterCreate{
		TableID:        tableID,
		Name:           name,
		Conditions:     conditions,
		Operators:      operators,
		SortDirections: nonNil(input.SortDirections),
		IsStandard:     input.IsStandard,
	})
	if err != nil {
		if isUniqueConstraintErr(err) {
			return models.SavedFilter{}, false, fmt.Errorf("%w: %q", ErrFilterAlreadyExists, name)
		}
		return models.SavedFilter{}, false, err
	}
	return created, true, nil
}

// UpdateFilter applies a partial change. A standard filter keeps its name and
// its empty condition chain; only its sort order may change.
func (s *FilterService) UpdateFilter(ctx context.Context, userID int64, filterID int64, patch models.FilterPatch) (models.SavedFilter, error) {
	current, err := s.store.GetFilterByID(ctx, userID, filterID)
	if err != nil {
		return models.SavedFilter{}, err
	}

	update := store.FilterUpdate{SortDirections: patch.SortDirections}
	if patch.Name != nil {
		name, err := normalizeFilterName(*patch.Name)
		if err != nil {
			return models.SavedFilter{}, err
		}
		if name != current.Name {
			if current.IsStandard {
				return models.SavedFilter{}, ErrStandardFilter
			}
			update.Name = &name
		}
	}
	if patch.Conditions != nil || patch.Operators != nil {
		if current.IsStandard {
			return models.SavedFilter{}, ErrStandardFilter
		}
		conditions := current.Conditions
		if patch.Conditions != nil {
			conditions = nonNil(*patch.Conditions)
		}
		operators := current.Operators
		if patch.Operators != nil {
			operators = nonNil(*patch.Operators)
		}
		if err := s.validate(current.TableID, conditions, operators); err != nil {
			return models.SavedFilter{}, err
		}
		update.Conditions = &conditions
		update.Operators = &operators
	}

	updated, err := s.store.UpdateFilter(ctx, userID, filterID, update)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return models.SavedFilter{}, ErrFilterAlreadyExists
		}
		return models.SavedFilter{}, err
	}
	return updated, nil
}

func (s *FilterService) DeleteFilter(ctx context.Context, userID int64, filterID int64) error {
	current, err := s.store.GetFilterByID(ctx, userID, filterID)
	if err != nil {
		return err
	}
	if current.IsStandard {
		return ErrStandardFilter
	}
	return s.store.DeleteFilter(ctx, userID, filterID)
}

// Expression renders a stored filter as a CEL expression over the table's
// columns, for consumers that evaluate filters outside this process.
func (s *FilterService) Expression(ctx context.Context, userID int64, filterID int64) (string, error) {
	filter, err := s.store.GetFilterByID(ctx, userID, filterID)
	if err != nil {
		return "", err
	}
	expr, err := s.evaluator(filter.TableID).CompileCEL(filter.Conditions, filter.Operators)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}
	return expr.Source, nil
}

func (s *FilterService) validate(tableID string, conditions []models.FilterCondition, operators []models.LogicalOp) error {
	if err := condition.Validate(s.catalog.Schema(tableID), conditions, operators); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}
	if _, err := s.evaluator(tableID).CompileCEL(conditions, operators); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}
	return nil
}

func (s *FilterService) evaluator(tableID string) *condition.Evaluator {
	return condition.NewEvaluator(condition.WithSchema(s.catalog.Schema(tableID)))
}

func normalizeFilterName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len([]rune(name)) > maxFilterNameLength {
		return "", ErrInvalidFilterName
	}
	return name, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return make([]T, 0)
	}
	return items
}
