package filterclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/service"
)

// Local serves one user's filters straight from the service layer, for admin
// commands that run next to the database.
type Local struct {
	filters *service.FilterService
	groups  *service.FilterGroupService
	userID  int64
}

func NewLocal(filters *service.FilterService, groups *service.FilterGroupService, userID int64) *Local {
	return &Local{filters: filters, groups: groups, userID: userID}
}

var _ Remote = (*Local)(nil)

func (l *Local) ListFilters(ctx context.Context, tableID string) ([]*models.SavedFilter, error) {
	list, err := l.filters.ListFilters(ctx, l.userID, tableID)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*models.SavedFilter, 0, len(list))
	for i := range list {
		out = append(out, &list[i])
	}
	return out, nil
}

func (l *Local) ListGroups(ctx context.Context, tableID string) ([]*models.FilterGroup, error) {
	list, err := l.groups.ListGroups(ctx, l.userID, tableID)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*models.FilterGroup, 0, len(list))
	for i := range list {
		out = append(out, &list[i])
	}
	return out, nil
}

func (l *Local) CreateFilter(ctx context.Context, in models.FilterInput) (models.SavedFilter, error) {
	saved, _, err := l.filters.SaveFilter(ctx, l.userID, in)
	return saved, translate(err)
}

func (l *Local) UpdateFilter(ctx context.Context, id int64, patch models.FilterPatch) (models.SavedFilter, error) {
	updated, err := l.filters.UpdateFilter(ctx, l.userID, id, patch)
	return updated, translate(err)
}

func (l *Local) DeleteFilter(ctx context.Context, id int64) error {
	return translate(l.filters.DeleteFilter(ctx, l.userID, id))
}

func (l *Local) CreateGroup(ctx context.Context, tableID, name string) (models.FilterGroup, error) {
	group, err := l.groups.CreateGroup(ctx, l.userID, tableID, name)
	return group, translate(err)
}

func (l *Local) UpdateGroup(ctx context.Context, id int64, name string) (models.FilterGroup, error) {
	group, err := l.groups.RenameGroup(ctx, l.userID, id, name)
	return group, translate(err)
}

func (l *Local) DeleteGroup(ctx context.Context, id int64) error {
	return translate(l.groups.DeleteGroup(ctx, l.userID, id))
}

func (l *Local) AddFilterToGroup(ctx context.Context, filterID, groupID int64) error {
	_, err := l.groups.AddFilter(ctx, l.userID, filterID, groupID)
	return translate(err)
}

func (l *Local) RemoveFilterFromGroup(ctx context.Context, filterID int64) error {
	_, err := l.groups.RemoveFilter(ctx, l.userID, filterID)
	return translate(err)
}

// translate maps service errors onto the same sentinels the HTTP client
// derives from status codes.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, service.ErrFilterAlreadyExists),
		errors.Is(err, service.ErrGroupAlreadyExists):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case errors.Is(err, service.ErrInvalidFilterName),
		errors.Is(err, service.ErrInvalidGroupName),
		errors.Is(err, service.ErrInvalidTableID),
		errors.Is(err, service.ErrInvalidConditions),
		errors.Is(err, service.ErrTableMismatch),
		errors.Is(err, service.ErrStandardFilter):
		return fmt.Errorf("%w: %v", ErrRejected, err)
	default:
		return err
	}
}
