package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/store"
)

var (
	ErrInvalidGroupName   = errors.New("invalid group name")
	ErrGroupAlreadyExists = errors.New("group already exists")
	ErrTableMismatch      = errors.New("filter and group belong to different tables")
)

type FilterGroupService struct {
	store *store.SQLStore
}

func NewFilterGroupService(s *store.SQLStore) *FilterGroupService {
	return &FilterGroupService{store: s}
}

func (s *FilterGroupService) ListGroups(ctx context.Context, userID int64, tableID string) ([]models.FilterGroup, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return nil, ErrInvalidTableID
	}
	return s.store.ListFilterGroupsByTable(ctx, userID, tableID)
}

func (s *FilterGroupService) CreateGroup(ctx context.Context, userID int64, tableID string, name string) (models.FilterGroup, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return models.FilterGroup{}, ErrInvalidTableID
	}
	name, err := normalizeGroupName(name)
	if err != nil {
		return models.FilterGroup{}, err
	}
	group, err := s.store.CreateFilterGroup(ctx, userID, tableID, name)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return models.FilterGroup{}, fmt.Errorf("%w: %q", ErrGroupAlreadyExists, name)
		}
		return models.FilterGroup{}, err
	}
	return group, nil
}

func (s *FilterGroupService) RenameGroup(ctx context.Context, userID int64, groupID int64, name string) (models.FilterGroup, error) {
	name, err := normalizeGroupName(name)
	if err != nil {
		return models.FilterGroup{}, err
	}
	group, err := s.store.RenameFilterGroup(ctx, userID, groupID, name)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return models.FilterGroup{}, fmt.Errorf("%w: %q", ErrGroupAlreadyExists, name)
		}
		return models.FilterGroup{}, err
	}
	return group, nil
}

// DeleteGroup removes the group; its filters stay, ungrouped.
func (s *FilterGroupService) DeleteGroup(ctx context.Context, userID int64, groupID int64) error {
	return s.store.DeleteFilterGroup(ctx, userID, groupID)
}

func (s *FilterGroupService) AddFilter(ctx context.Context, userID int64, filterID int64, groupID int64) (models.FilterGroup, error) {
	filter, err := s.store.GetFilterByID(ctx, userID, filterID)
	if err != nil {
		return models.FilterGroup{}, err
	}
	group, err := s.store.GetFilterGroupByID(ctx, userID, groupID)
	if err != nil {
		return models.FilterGroup{}, err
	}
	if filter.TableID != group.TableID {
		return models.FilterGroup{}, ErrTableMismatch
	}
	if err := s.store.AddFilterToGroup(ctx, userID, filterID, groupID); err != nil {
		return models.FilterGroup{}, err
	}
	return s.store.GetFilterGroupByID(ctx, userID, groupID)
}

func (s *FilterGroupService) RemoveFilter(ctx context.Context, userID int64, filterID int64) (models.SavedFilter, error) {
	if err := s.store.RemoveFilterFromGroup(ctx, userID, filterID); err != nil {
		return models.SavedFilter{}, err
	}
	return s.store.GetFilterByID(ctx, userID, filterID)
}

func normalizeGroupName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len([]rune(name)) > maxFilterNameLength {
		return "", ErrInvalidGroupName
	}
	return name, nil
}
