package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shinyes/filterdeck/internal/models"
)

type FilterCreate struct {
	TableID        string
	Name           string
	Conditions     []models.FilterCondition
	Operators      []models.LogicalOp
	SortDirections []models.SortDirection
	IsStandard     bool
}

type FilterUpdate struct {
	Name           *string
	Conditions     *[]models.FilterCondition
	Operators      *[]models.LogicalOp
	SortDirections *[]models.SortDirection
}

const filterColumns = `id, user_id, table_id, name, conditions_json, operators_json, sort_directions_json,
	group_id, position, is_standard, created_at, updated_at`

func (s *SQLStore) CreateFilter(ctx context.Context, userID int64, input FilterCreate) (models.SavedFilter, error) {
	conditionsJSON, operatorsJSON, sortJSON, err := encodeFilterBody(input.Conditions, input.Operators, input.SortDirections)
	if err != nil {
		return models.SavedFilter{}, err
	}
	now := s.timestamp()
	id, err := insertID(ctx, s.db,
		`INSERT INTO saved_filters (user_id, table_id, name, conditions_json, operators_json, sort_directions_json, is_standard, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, input.TableID, input.Name,
		conditionsJSON, operatorsJSON, sortJSON,
		boolToSQLiteInt(input.IsStandard), now, now,
	)
	if err != nil {
		return models.SavedFilter{}, err
	}
	return s.GetFilterByID(ctx, userID, id)
}

func (s *SQLStore) GetFilterByID(ctx context.Context, userID int64, id int64) (models.SavedFilter, error) {
	return scanFilter(s.db.QueryRowContext(
		ctx,
		`SELECT `+filterColumns+` FROM saved_filters WHERE id = ? AND user_id = ?`,
		id,
		userID,
	))
}

func (s *SQLStore) GetFilterByName(ctx context.Context, userID int64, tableID string, name string) (models.SavedFilter, error) {
	return scanFilter(s.db.QueryRowContext(
		ctx,
		`SELECT `+filterColumns+` FROM saved_filters WHERE user_id = ? AND table_id = ? AND name = ?`,
		userID,
		tableID,
		name,
	))
}

func (s *SQLStore) ListFiltersByTable(ctx context.Context, userID int64, tableID string) ([]models.SavedFilter, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+filterColumns+`
		FROM saved_filters
		WHERE user_id = ? AND table_id = ?
		ORDER BY created_at ASC, id ASC`,
		userID,
		tableID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.SavedFilter, 0)
	for rows.Next() {
		filter, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, filter)
	}
	return result, rows.Err()
}

// ListFilterTables returns the distinct table ids the user has filters for.
func (s *SQLStore) ListFilterTables(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT table_id FROM saved_filters WHERE user_id = ? ORDER BY table_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]string, 0)
	for rows.Next() {
		var tableID string
		if err := rows.Scan(&tableID); err != nil {
			return nil, err
		}
		result = append(result, tableID)
	}
	return result, rows.Err()
}

func (s *SQLStore) UpdateFilter(ctx context.Context, userID int64, id int64, update FilterUpdate) (models.SavedFilter, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 7)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Conditions != nil {
		raw, err := encodeJSONList(*update.Conditions)
		if err != nil {
			return models.SavedFilter{}, fmt.Errorf("encode conditions: %w", err)
		}
		sets = append(sets, "conditions_json = ?")
		args = append(args, raw)
	}
	if update.Operators != nil {
		raw, err := encodeJSONList(*update.Operators)
		if err != nil {
			return models.SavedFilter{}, fmt.Errorf("encode operators: %w", err)
		}
		sets = append(sets, "operators_json = ?")
		args = append(args, raw)
	}
	if update.SortDirections != nil {
		raw, err := encodeJSONList(*update.SortDirections)
		if err != nil {
			return models.SavedFilter{}, fmt.Errorf("encode sort directions: %w", err)
		}
		sets = append(sets, "sort_directions_json = ?")
		args = append(args, raw)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timestamp(), id, userID)

	query := `UPDATE saved_filters SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND user_id = ?`
	if err := execOne(ctx, s.db, query, args...); err != nil {
		return models.SavedFilter{}, err
	}
	return s.GetFilterByID(ctx, userID, id)
}

func (s *SQLStore) DeleteFilter(ctx context.Context, userID int64, id int64) error {
	return execOne(ctx, s.db, `DELETE FROM saved_filters WHERE id = ? AND user_id = ?`, id, userID)
}

func scanFilter(scanner rowScanner) (models.SavedFilter, error) {
	var filter models.SavedFilter
	var conditionsJSON string
	var operatorsJSON string
	var sortJSON string
	var groupID sql.NullInt64
	var isStandard int
	var createdAt string
	var updatedAt string
	if err := scanner.Scan(
		&filter.ID,
		&filter.UserID,
		&filter.TableID,
		&filter.Name,
		&conditionsJSON,
		&operatorsJSON,
		&sortJSON,
		&groupID,
		&filter.Order,
		&isStandard,
		&createdAt,
		&updatedAt,
	); err != nil {
		return models.SavedFilter{}, err
	}
	filter.Conditions = make([]models.FilterCondition, 0)
	if err := json.Unmarshal([]byte(conditionsJSON), &filter.Conditions); err != nil {
		return models.SavedFilter{}, fmt.Errorf("decode conditions of filter %d: %w", filter.ID, err)
	}
	filter.Operators = make([]models.LogicalOp, 0)
	if err := json.Unmarshal([]byte(operatorsJSON), &filter.Operators); err != nil {
		return models.SavedFilter{}, fmt.Errorf("decode operators of filter %d: %w", filter.ID, err)
	}
	filter.SortDirections = make([]models.SortDirection, 0)
	if err := json.Unmarshal([]byte(sortJSON), &filter.SortDirections); err != nil {
		return models.SavedFilter{}, fmt.Errorf("decode sort directions of filter %d: %w", filter.ID, err)
	}
	if groupID.Valid {
		gid := groupID.Int64
		filter.GroupID = &gid
	}
	filter.IsStandard = isStandard != 0
	if err := parseTimes(createdAt, &filter.CreatedAt, updatedAt, &filter.UpdatedAt); err != nil {
		return models.SavedFilter{}, err
	}
	return filter, nil
}

func encodeFilterBody(conditions []models.FilterCondition, operators []models.LogicalOp, sorts []models.SortDirection) (string, string, string, error) {
	conditionsJSON, err := encodeJSONList(conditions)
	if err != nil {
		return "", "", "", fmt.Errorf("encode conditions: %w", err)
	}
	operatorsJSON, err := encodeJSONList(operators)
	if err != nil {
		return "", "", "", fmt.Errorf("encode operators: %w", err)
	}
	sortJSON, err := encodeJSONList(sorts)
	if err != nil {
		return "", "", "", fmt.Errorf("encode sort directions: %w", err)
	}
	return conditionsJSON, operatorsJSON, sortJSON, nil
}

// encodeJSONList stores nil slices as "[]" so rows never hold null.
func encodeJSONList[T any](items []T) (string, error) {
	if items == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
