package filterclient

import (
	"context"
	"errors"

	"github.com/shinyes/filterdeck/internal/models"
)

var (
	ErrNotFound      = errors.New("saved filter store: not found")
	ErrAlreadyExists = errors.New("saved filter store: already exists")
	ErrRejected      = errors.New("saved filter store: rejected")
	ErrUnauthorized  = errors.New("saved filter store: unauthorized")
)

// Remote is the durable owner of saved filters and filter groups. List calls
// may return nil entries; callers normalize.
type Remote interface {
	ListFilters(ctx context.Context, tableID string) ([]*models.SavedFilter, error)
	ListGroups(ctx context.Context, tableID string) ([]*models.FilterGroup, error)
	CreateFilter(ctx context.Context, in models.FilterInput) (models.SavedFilter, error)
	UpdateFilter(ctx context.Context, id int64, patch models.FilterPatch) (models.SavedFilter, error)
	DeleteFilter(ctx context.Context, id int64) error
	CreateGroup(ctx context.Context, tableID, name string) (models.FilterGroup, error)
	UpdateGroup(ctx context.Context, id int64, name string) (models.FilterGroup, error)
	// DeleteGroup ungroups the members; it never deletes filters.
	DeleteGroup(ctx context.Context, id int64) error
	AddFilterToGroup(ctx context.Context, filterID, groupID int64) error
	RemoveFilterFromGroup(ctx context.Context, filterID int64) error
}
