package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/storage"
)

const exportFormatVersion = 1

var ErrInvalidExport = errors.New("invalid filter export")

// FilterExport is the portable form of one user's filters on one table.
// Groups refer to their members by filter name so an export can be
// imported into another account.
type FilterExport struct {
	Version    int                   `json:"version"`
	TableID    string                `json:"tableId"`
	ExportedAt time.Time             `json:"exportedAt"`
	Filters    []ExportedFilter      `json:"filters"`
	Groups     []ExportedFilterGroup `json:"groups"`
}

type ExportedFilter struct {
	Name           string                   `json:"name"`
	Conditions     []models.FilterCondition `json:"conditions"`
	Operators      []models.LogicalOp       `json:"operators"`
	SortDirections []models.SortDirection   `json:"sortDirections,omitempty"`
	IsStandard     bool                     `json:"isStandard,omitempty"`
}

type ExportedFilterGroup struct {
	Name    string   `json:"name"`
	Filters []string `json:"filters"`
}

type ImportResult struct {
	Created       int
	Updated       int
	Skipped       int
	GroupsCreated int
}

type ExportService struct {
	filters *FilterService
	groups  *FilterGroupService
	storage storage.Store
	now     func() time.Time
}

func NewExportService(filters *FilterService, groups *FilterGroupService, store storage.Store) *ExportService {
	return &ExportService{filters: filters, groups: groups, storage: store, now: time.Now}
}

// ExportKey is where Export writes the table's snapshot for the user.
func ExportKey(userID int64, tableID string) string {
	return fmt.Sprintf("users/%d/%s.json", userID, tableID)
}

func (s *ExportService) Snapshot(ctx context.Context, userID int64, tableID string) (FilterExport, error) {
	var filters []models.SavedFilter
	var groups []models.FilterGroup
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		filters, err = s.filters.ListFilters(gctx, userID, tableID)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = s.groups.ListGroups(gctx, userID, tableID)
		return err
	})
	if err := g.Wait(); err != nil {
		return FilterExport{}, err
	}

	out := FilterExport{
		Version:    exportFormatVersion,
		TableID:    tableID,
		ExportedAt: s.now().UTC(),
		Filters:    make([]ExportedFilter, 0, len(filters)),
		Groups:     make([]ExportedFilterGroup, 0, len(groups)),
	}
	for _, f := range filters {
		out.Filters = append(out.Filters, ExportedFilter{
			Name:           f.Name,
			Conditions:     f.Conditions,
			Operators:      f.Operators,
			SortDirections: f.SortDirections,
			IsStandard:     f.IsStandard,
		})
	}
	for _, group := range groups {
		names := make([]string, 0, len(group.Filters))
		for _, member := range group.Filters {
			names = append(names, member.Name)
		}
		out.Groups = append(out.Groups, ExportedFilterGroup{Name: group.Name, Filters: names})
	}
	return out, nil
}

// Export writes the snapshot to storage and returns its key.
func (s *ExportService) Export(ctx context.Context, userID int64, tableID string) (string, error) {
	snapshot, err := s.Snapshot(ctx, userID, tableID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	key := ExportKey(userID, tableID)
	if _, err := s.storage.Put(ctx, key, "application/json", data); err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}
	return key, nil
}

// Import reads an export from storage into the user's account. Filters are
// saved by name, so re-importing updates rather than duplicates. A standard
// filter is only created when the account has none by that name.
func (s *ExportService) Import(ctx context.Context, userID int64, key string) (ImportResult, error) {
	rc, err := s.storage.Open(ctx, key)
	if err != nil {
		return ImportResult{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read export: %w", err)
	}
	var snapshot FilterExport
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	return s.Apply(ctx, userID, snapshot)
}

func (s *ExportService) Apply(ctx context.Context, userID int64, snapshot FilterExport) (ImportResult, error) {
	if snapshot.Version != exportFormatVersion {
		return ImportResult{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidExport, snapshot.Version)
	}
	tableID := strings.TrimSpace(snapshot.TableID)
	if tableID == "" {
		return ImportResult{}, fmt.Errorf("%w: missing table id", ErrInvalidExport)
	}

	var result ImportResult
	ids := make(map[string]int64, len(snapshot.Filters))
	for _, f := range snapshot.Filters {
		saved, created, err := s.filters.SaveFilter(ctx, userID, models.FilterInput{
			TableID:        tableID,
			Name:           f.Name,
			Conditions:     f.Conditions,
			Operators:      f.Operators,
			SortDirections: f.SortDirections,
			IsStandard:     f.IsStandard,
		})
		switch {
		case errors.Is(err, ErrFilterAlreadyExists):
			result.Skipped++
			continue
		case err != nil:
			return result, fmt.Errorf("import filter %q: %w", f.Name, err)
		case created:
			result.Created++
		default:
			result.Updated++
		}
		ids[saved.Name] = saved.ID
	}

	existing, err := s.groups.ListGroups(ctx, userID, tableID)
	if err != nil {
		return result, err
	}
	groupIDs := make(map[string]int64, len(existing))
	for _, group := range existing {
		groupIDs[group.Name] = group.ID
	}
	for _, group := range snapshot.Groups {
		groupID, ok := groupIDs[strings.TrimSpace(group.Name)]
		if !ok {
			created, err := s.groups.CreateGroup(ctx, userID, tableID, group.Name)
			if err != nil {
				return result, fmt.Errorf("import group %q: %w", group.Name, err)
			}
			groupID = created.ID
			result.GroupsCreated++
		}
		for _, name := range group.Filters {
			filterID, ok := ids[name]
			if !ok {
				continue
			}
			if _, err := s.groups.AddFilter(ctx, userID, filterID, groupID); err != nil {
				return result, fmt.Errorf("import group %q member %q: %w", group.Name, name, err)
			}
		}
	}
	return result, nil
}
