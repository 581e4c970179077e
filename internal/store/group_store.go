package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shinyes/filterdeck/internal/models"
)

const groupColumns = `id, user_id, table_id, name, position, created_at, updated_at`

// CreateFilterGroup appends a group after the user's existing groups for the table.
func (s *SQLStore) CreateFilterGroup(ctx context.Context, userID int64, tableID string, name string) (models.FilterGroup, error) {
	var groupID int64
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var position int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), -1) + 1 FROM filter_groups WHERE user_id = ? AND table_id = ?`,
			userID, tableID,
		).Scan(&position); err != nil {
			return err
		}
		now := s.timestamp()
		var err error
		groupID, err = insertID(ctx, tx,
			`INSERT INTO filter_groups (user_id, table_id, name, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, tableID, name, position, now, now,
		)
		return err
	})
	if err != nil {
		return models.FilterGroup{}, err
	}
	return s.GetFilterGroupByID(ctx, userID, groupID)
}

// GetFilterGroupByID returns the group with its members in position order.
func (s *SQLStore) GetFilterGroupByID(ctx context.Context, userID int64, groupID int64) (models.FilterGroup, error) {
	group, err := scanFilterGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM filter_groups WHERE id = ? AND user_id = ?`, groupID, userID))
	if err != nil {
		return models.FilterGroup{}, err
	}
	groups := []models.FilterGroup{group}
	if err := s.attachMembers(ctx, userID, groups); err != nil {
		return models.FilterGroup{}, err
	}
	return groups[0], nil
}

func (s *SQLStore) ListFilterGroupsByTable(ctx context.Context, userID int64, tableID string) ([]models.FilterGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM filter_groups
		WHERE user_id = ? AND table_id = ?
		ORDER BY position ASC, id ASC`,
		userID, tableID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.FilterGroup, 0)
	for rows.Next() {
		group, err := scanFilterGroup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachMembers(ctx, userID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// attachMembers loads the members of every group in one query. Groups
// without members get an empty, non-nil slice.
func (s *SQLStore) attachMembers(ctx context.Context, userID int64, groups []models.FilterGroup) error {
	if len(groups) == 0 {
		return nil
	}
	args := make([]any, 0, len(groups)+1)
	args = append(args, userID)
	index := make(map[int64]int, len(groups))
	for i := range groups {
		groups[i].Filters = make([]models.SavedFilter, 0)
		index[groups[i].ID] = i
		args = append(args, groups[i].ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(groups)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+filterColumns+` FROM saved_filters
		WHERE user_id = ? AND group_id IN (`+placeholders+`)
		ORDER BY position ASC, id ASC`,
		args...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		filter, err := scanFilter(rows)
		if err != nil {
			return err
		}
		i := index[*filter.GroupID]
		groups[i].Filters = append(groups[i].Filters, filter)
	}
	return rows.Err()
}

func (s *SQLStore) RenameFilterGroup(ctx context.Context, userID int64, groupID int64, name string) (models.FilterGroup, error) {
	if err := execOne(ctx, s.db,
		`UPDATE filter_groups SET name = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		name, s.timestamp(), groupID, userID,
	); err != nil {
		return models.FilterGroup{}, err
	}
	return s.GetFilterGroupByID(ctx, userID, groupID)
}

// DeleteFilterGroup removes the group and ungroups its members. The filters
// themselves are kept.
func (s *SQLStore) DeleteFilterGroup(ctx context.Context, userID int64, groupID int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE saved_filters SET group_id = NULL, position = 0, updated_at = ?
			WHERE group_id = ? AND user_id = ?`,
			s.timestamp(), groupID, userID,
		); err != nil {
			return err
		}
		return execOne(ctx, tx, `DELETE FROM filter_groups WHERE id = ? AND user_id = ?`, groupID, userID)
	})
}

// AddFilterToGroup moves the filter to the end of the group. Callers check
// that both belong to the same table.
func (s *SQLStore) AddFilterToGroup(ctx context.Context, userID int64, filterID int64, groupID int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var position int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), -1) + 1 FROM saved_filters WHERE group_id = ? AND user_id = ? AND id <> ?`,
			groupID, userID, filterID,
		).Scan(&position); err != nil {
			return err
		}
		return execOne(ctx, tx,
			`UPDATE saved_filters SET group_id = ?, position = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			groupID, position, s.timestamp(), filterID, userID,
		)
	})
}

func (s *SQLStore) RemoveFilterFromGroup(ctx context.Context, userID int64, filterID int64) error {
	return execOne(ctx, s.db,
		`UPDATE saved_filters SET group_id = NULL, position = 0, updated_at = ? WHERE id = ? AND user_id = ?`,
		s.timestamp(), filterID, userID,
	)
}

func scanFilterGroup(scanner rowScanner) (models.FilterGroup, error) {
	var group models.FilterGroup
	var createdAt, updatedAt string
	if err := scanner.Scan(
		&group.ID,
		&group.UserID,
		&group.TableID,
		&group.Name,
		&group.Order,
		&createdAt,
		&updatedAt,
	); err != nil {
		return models.FilterGroup{}, err
	}
	if err := parseTimes(createdAt, &group.CreatedAt, updatedAt, &group.UpdatedAt); err != nil {
		return models.FilterGroup{}, err
	}
	return group, nil
}
