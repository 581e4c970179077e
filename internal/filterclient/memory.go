package filterclient

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shinyes/filterdeck/internal/models"
)

// Memory is an in-process Remote for one user. It follows the server's
// rules: unique names per table, standard filters cannot be renamed, edited
// or deleted, and deleting a group ungroups its members.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	nextID  int64
	filters map[int64]*models.SavedFilter
	groups  map[int64]*models.FilterGroup
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:     now,
		filters: make(map[int64]*models.SavedFilter),
		groups:  make(map[int64]*models.FilterGroup),
	}
}

var _ Remote = (*Memory)(nil)

func (m *Memory) ListFilters(_ context.Context, tableID string) ([]*models.SavedFilter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SavedFilter, 0)
	for _, f := range m.filters {
		if f.TableID == tableID {
			cp := *f
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.SavedFilter) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *Memory) ListGroups(_ context.Context, tableID string) ([]*models.FilterGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.FilterGroup, 0)
	for _, g := range m.groups {
		if g.TableID != tableID {
			continue
		}
		cp := *g
		cp.Filters = m.membersLocked(g.ID)
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.FilterGroup) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

func (m *Memory) membersLocked(groupID int64) []models.SavedFilter {
	members := make([]models.SavedFilter, 0)
	for _, f := range m.filters {
		if f.GroupID != nil && *f.GroupID == groupID {
			members = append(members, *f)
		}
	}
	slices.SortFunc(members, func(a, b models.SavedFilter) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return int(a.ID - b.ID)
	})
	return members
}

func (m *Memory) CreateFilter(_ context.Context, in models.FilterInput) (models.SavedFilter, error) {
	name := strings.TrimSpace(in.Name)
	tableID := strings.TrimSpace(in.TableID)
	if name == "" || tableID == "" {
		return models.SavedFilter{}, fmt.Errorf("%w: tableId and name are required", ErrRejected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing := m.filterByNameLocked(tableID, name); existing != nil {
		if in.IsStandard || existing.IsStandard {
			return models.SavedFilter{}, fmt.Errorf("%w: filter %q", ErrAlreadyExists, name)
		}
		existing.Conditions = nonNilConditions(in.Conditions)
		existing.Operators = nonNilOperators(in.Operators)
		existing.SortDirections = in.SortDirections
		existing.UpdatedAt = now
		return *existing, nil
	}
	m.nextID++
	f := &models.SavedFilter{
		ID:             m.nextID,
		TableID:        tableID,
		Name:           name,
		Conditions:     nonNilConditions(in.Conditions),
		Operators:      nonNilOperators(in.Operators),
		SortDirections: in.SortDirections,
		IsStandard:     in.IsStandard,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.filters[f.ID] = f
	return *f, nil
}

func (m *Memory) filterByNameLocked(tableID, name string) *models.SavedFilter {
	for _, f := range m.filters {
		if f.TableID == tableID && f.Name == name {
			return f
		}
	}
	return nil
}

func (m *Memory) UpdateFilter(_ context.Context, id int64, patch models.FilterPatch) (models.SavedFilter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.filters[id]
	if !ok {
		return models.SavedFilter{}, fmt.Errorf("%w: filter %d", ErrNotFound, id)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.SavedFilter{}, fmt.Errorf("%w: name is required", ErrRejected)
		}
		if name != f.Name {
			if f.IsStandard {
				return models.SavedFilter{}, fmt.Errorf("%w: standard filters cannot be renamed", ErrRejected)
			}
			if m.filterByNameLocked(f.TableID, name) != nil {
				return models.SavedFilter{}, fmt.Errorf("%w: filter %q", ErrAlreadyExists, name)
			}
			f.Name = name
		}
	}
	if f.IsStandard && (patch.Conditions != nil || patch.Operators != nil) {
		return models.SavedFilter{}, fmt.Errorf("%w: standard filters keep their conditions", ErrRejected)
	}
	if patch.Conditions != nil {
		f.Conditions = nonNilConditions(*patch.Conditions)
	}
	if patch.Operators != nil {
		f.Operators = nonNilOperators(*patch.Operators)
	}
	if patch.SortDirections != nil {
		f.SortDirections = *patch.SortDirections
	}
	f.UpdatedAt = m.now()
	return *f, nil
}

func (m *Memory) DeleteFilter(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.filters[id]
	if !ok {
		return fmt.Errorf("%w: filter %d", ErrNotFound, id)
	}
	if f.IsStandard {
		return fmt.Errorf("%w: standard filters cannot be deleted", ErrRejected)
	}
	delete(m.filters, id)
	return nil
}

func (m *Memory) CreateGroup(_ context.Context, tableID, name string) (models.FilterGroup, error) {
	name = strings.TrimSpace(name)
	tableID = strings.TrimSpace(tableID)
	if name == "" || tableID == "" {
		return models.FilterGroup{}, fmt.Errorf("%w: tableId and name are required", ErrRejected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	maxOrder := -1
	for _, g := range m.groups {
		if g.TableID != tableID {
			continue
		}
		if g.Name == name {
			return models.FilterGroup{}, fmt.Errorf("%w: group %q", ErrAlreadyExists, name)
		}
		maxOrder = max(maxOrder, g.Order)
	}
	now := m.now()
	m.nextID++
	g := &models.FilterGroup{
		ID:        m.nextID,
		TableID:   tableID,
		Name:      name,
		Order:     maxOrder + 1,
		Filters:   []models.SavedFilter{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.groups[g.ID] = g
	return *g, nil
}

func (m *Memory) UpdateGroup(_ context.Context, id int64, name string) (models.FilterGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.FilterGroup{}, fmt.Errorf("%w: name is required", ErrRejected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return models.FilterGroup{}, fmt.Errorf("%w: group %d", ErrNotFound, id)
	}
	for _, other := range m.groups {
		if other.ID != id && other.TableID == g.TableID && other.Name == name {
			return models.FilterGroup{}, fmt.Errorf("%w: group %q", ErrAlreadyExists, name)
		}
	}
	g.Name = name
	g.UpdatedAt = m.now()
	out := *g
	out.Filters = m.membersLocked(id)
	return out, nil
}

func (m *Memory) DeleteGroup(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return fmt.Errorf("%w: group %d", ErrNotFound, id)
	}
	for _, f := range m.filters {
		if f.GroupID != nil && *f.GroupID == id {
			f.GroupID = nil
			f.Order = 0
		}
	}
	delete(m.groups, id)
	return nil
}

func (m *Memory) AddFilterToGroup(_ context.Context, filterID, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.filters[filterID]
	if !ok {
		return fmt.Errorf("%w: filter %d", ErrNotFound, filterID)
	}
	g, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: group %d", ErrNotFound, groupID)
	}
	if f.TableID != g.TableID {
		return fmt.Errorf("%w: filter and group belong to different tables", ErrRejected)
	}
	maxOrder := -1
	for _, member := range m.membersLocked(groupID) {
		if member.ID != filterID {
			maxOrder = max(maxOrder, member.Order)
		}
	}
	gid := groupID
	f.GroupID = &gid
	f.Order = maxOrder + 1
	f.UpdatedAt = m.now()
	return nil
}

func (m *Memory) RemoveFilterFromGroup(_ context.Context, filterID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.filters[filterID]
	if !ok {
		return fmt.Errorf("%w: filter %d", ErrNotFound, filterID)
	}
	f.GroupID = nil
	f.Order = 0
	f.UpdatedAt = m.now()
	return nil
}

func nonNilConditions(in []models.FilterCondition) []models.FilterCondition {
	if in == nil {
		return []models.FilterCondition{}
	}
	return slices.Clone(in)
}

func nonNilOperators(in []models.LogicalOp) []models.LogicalOp {
	if in == nil {
		return []models.LogicalOp{}
	}
	return slices.Clone(in)
}
