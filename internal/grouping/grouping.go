package grouping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shinyes/filterdeck/internal/filterclient"
	"github.com/shinyes/filterdeck/internal/logging"
	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/selection"
)

var (
	ErrStandardFilter = errors.New("standard filters cannot be changed or deleted")
	ErrUnknownFilter  = errors.New("filter is not loaded for this table")
	ErrInvalidName    = errors.New("name is required")
)

// Cache is the part of the filter cache mutations read from and refresh.
type Cache interface {
	Refresh(ctx context.Context, tableID string) error
	Filter(tableID string, id int64) (models.SavedFilter, bool)
	Groups(tableID string) []models.FilterGroup
}

type DropAction int

const (
	DropNone DropAction = iota
	DropCreatedGroup
	DropAddedToGroup
)

type DropResult struct {
	Action  DropAction
	GroupID int64
}

// Service applies filter and group mutations for table views. Every
// mutation goes to the remote store first and then refreshes the cache.
type Service struct {
	remote    filterclient.Remote
	cache     Cache
	registry  *selection.Registry
	logger    logging.Logger
	groupName func(existing []models.FilterGroup) string
}

type Option func(*Service)

func WithRegistry(r *selection.Registry) Option {
	return func(s *Service) { s.registry = r }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGroupNamer names the groups created by drag and drop.
func WithGroupNamer(fn func(existing []models.FilterGroup) string) Option {
	return func(s *Service) {
		if fn != nil {
			s.groupName = fn
		}
	}
}

func New(remote filterclient.Remote, cache Cache, opts ...Option) *Service {
	s := &Service{remote: remote, cache: cache, logger: logging.Nop(), groupName: nextGroupName}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func nextGroupName(existing []models.FilterGroup) string {
	taken := make(map[string]bool, len(existing))
	for _, g := range existing {
		taken[g.Name] = true
	}
	for n := len(existing) + 1; ; n++ {
		name := fmt.Sprintf("Group %d", n)
		if !taken[name] {
			return name
		}
	}
}

func (s *Service) refresh(ctx context.Context, tableID string) {
	if err := s.cache.Refresh(ctx, tableID); err != nil {
		s.logger.Error(ctx, "refresh filters after mutation", err, "table", tableID)
	}
}

func (s *Service) AddFilterToGroup(ctx context.Context, tableID string, filterID, groupID int64) error {
	if err := s.remote.AddFilterToGroup(ctx, filterID, groupID); err != nil {
		return fmt.Errorf("add filter %d to group %d: %w", filterID, groupID, err)
	}
	s.refresh(ctx, tableID)
	return nil
}

// CreateGroupWithFilters creates a group and moves filterIDs into it. If a
// move fails the group is kept with the members added so far.
func (s *Service) CreateGroupWithFilters(ctx context.Context, tableID, name string, filterIDs ...int64) (models.FilterGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.FilterGroup{}, ErrInvalidName
	}
	group, err := s.remote.CreateGroup(ctx, tableID, name)
	if err != nil {
		return models.FilterGroup{}, fmt.Errorf("create group %q: %w", name, err)
	}
	defer s.refresh(ctx, tableID)
	for _, id := range filterIDs {
		if err := s.remote.AddFilterToGroup(ctx, id, group.ID); err != nil {
			return group, fmt.Errorf("add filter %d to group %d: %w", id, group.ID, err)
		}
	}
	return group, nil
}

// Ungroup deletes the group; its filters stay, ungrouped.
func (s *Service) Ungroup(ctx context.Context, tableID string, groupID int64) error {
	if err := s.remote.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("delete group %d: %w", groupID, err)
	}
	s.refresh(ctx, tableID)
	return nil
}

func (s *Service) RenameGroup(ctx context.Context, tableID string, groupID int64, name string) (models.FilterGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.FilterGroup{}, ErrInvalidName
	}
	group, err := s.remote.UpdateGroup(ctx, groupID, name)
	if err != nil {
		return models.FilterGroup{}, fmt.Errorf("rename group %d: %w", groupID, err)
	}
	s.refresh(ctx, tableID)
	return group, nil
}

func (s *Service) RemoveFromGroup(ctx context.Context, tableID string, filterID int64) error {
	if err := s.remote.RemoveFilterFromGroup(ctx, filterID); err != nil {
		return fmt.Errorf("remove filter %d from its group: %w", filterID, err)
	}
	s.refresh(ctx, tableID)
	return nil
}

// Drop handles filter dragged being dropped on filter target. Dropping on a
// grouped filter joins its group; dropping on an ungrouped one creates a new
// group holding both. Dropping a filter on itself, or on a member of its own
// group, changes nothing.
func (s *Service) Drop(ctx context.Context, tableID string, draggedID, targetID int64) (DropResult, error) {
	if draggedID == targetID {
		return DropResult{Action: DropNone}, nil
	}
	dragged, ok := s.cache.Filter(tableID, draggedID)
	if !ok {
		return DropResult{}, fmt.Errorf("%w: %d", ErrUnknownFilter, draggedID)
	}
	target, ok := s.cache.Filter(tableID, targetID)
	if !ok {
		return DropResult{}, fmt.Errorf("%w: %d", ErrUnknownFilter, targetID)
	}

	if target.Grouped() {
		groupID := *target.GroupID
		if dragged.Grouped() && *dragged.GroupID == groupID {
			return DropResult{Action: DropNone, GroupID: groupID}, nil
		}
		if err := s.AddFilterToGroup(ctx, tableID, dragged.ID, groupID); err != nil {
			return DropResult{}, err
		}
		return DropResult{Action: DropAddedToGroup, GroupID: groupID}, nil
	}

	name := s.groupName(s.cache.Groups(tableID))
	group, err := s.CreateGroupWithFilters(ctx, tableID, name, target.ID, dragged.ID)
	if err != nil {
		return DropResult{}, err
	}
	return DropResult{Action: DropCreatedGroup, GroupID: group.ID}, nil
}

// SaveFilter stores a custom filter. Saving under an existing custom name
// replaces that filter's conditions.
func (s *Service) SaveFilter(ctx context.Context, in models.FilterInput) (models.SavedFilter, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return models.SavedFilter{}, ErrInvalidName
	}
	in.IsStandard = false
	f, err := s.remote.CreateFilter(ctx, in)
	if err != nil {
		return models.SavedFilter{}, fmt.Errorf("save filter %q: %w", in.Name, err)
	}
	s.refresh(ctx, in.TableID)
	if s.registry != nil {
		s.registry.FilterUpdated(f)
	}
	return f, nil
}

func (s *Service) RenameFilter(ctx context.Context, tableID string, filterID int64, name string) (models.SavedFilter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.SavedFilter{}, ErrInvalidName
	}
	if cached, ok := s.cache.Filter(tableID, filterID); ok && cached.IsStandard {
		return models.SavedFilter{}, ErrStandardFilter
	}
	f, err := s.remote.UpdateFilter(ctx, filterID, models.FilterPatch{Name: &name})
	if err != nil {
		return models.SavedFilter{}, fmt.Errorf("rename filter %d: %w", filterID, err)
	}
	s.refresh(ctx, tableID)
	if s.registry != nil {
		s.registry.FilterUpdated(f)
	}
	return f, nil
}

// DeleteFilter removes a custom filter. Standard filters are refused before
// any remote call. Views showing the filter lose their active selection.
func (s *Service) DeleteFilter(ctx context.Context, tableID string, filterID int64) error {
	if cached, ok := s.cache.Filter(tableID, filterID); ok && cached.IsStandard {
		return ErrStandardFilter
	}
	if err := s.remote.DeleteFilter(ctx, filterID); err != nil {
		return fmt.Errorf("delete filter %d: %w", filterID, err)
	}
	if s.registry != nil {
		s.registry.FilterDeleted(tableID, filterID)
	}
	s.refresh(ctx, tableID)
	return nil
}
