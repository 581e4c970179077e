package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shinyes/filterdeck/internal/filterclient"
	"github.com/shinyes/filterdeck/internal/logging"
	"github.com/shinyes/filterdeck/internal/models"
)

const DefaultName = "All"

var ErrStandardMissing = errors.New("standard filter reported as existing but not listed")

// Refresher is the part of the filter cache the bootstrapper updates.
type Refresher interface {
	Refresh(ctx context.Context, tableID string) error
}

type Option func(*Bootstrapper)

// WithName sets the name given to newly created standard filters.
func WithName(name string) Option {
	return func(b *Bootstrapper) {
		if name = strings.TrimSpace(name); name != "" {
			b.name = name
		}
	}
}

// WithLegacyNames recognises filters created before the standard flag
// existed by name.
func WithLegacyNames(names ...string) Option {
	return func(b *Bootstrapper) { b.legacy = append(b.legacy, names...) }
}

func WithLogger(l logging.Logger) Option {
	return func(b *Bootstrapper) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bootstrapper makes sure every table has its standard filter: empty
// conditions, flagged IsStandard.
type Bootstrapper struct {
	remote filterclient.Remote
	cache  Refresher
	name   string
	legacy []string
	logger logging.Logger
	flight singleflight.Group
}

func New(remote filterclient.Remote, cache Refresher, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{remote: remote, cache: cache, name: DefaultName, logger: logging.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bootstrapper) Name() string {
	return b.name
}

// Ensure returns the standard filter of tableID, creating it if absent. A
// create that loses a race to another client counts as success. Concurrent
// calls for one table share a single round trip.
func (b *Bootstrapper) Ensure(ctx context.Context, tableID string) (models.SavedFilter, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return models.SavedFilter{}, fmt.Errorf("ensure standard filter: empty table id")
	}
	v, err, _ := b.flight.Do(tableID, func() (any, error) {
		return b.ensure(context.WithoutCancel(ctx), tableID)
	})
	if err != nil {
		return models.SavedFilter{}, err
	}
	return v.(models.SavedFilter), nil
}

func (b *Bootstrapper) ensure(ctx context.Context, tableID string) (models.SavedFilter, error) {
	filters, err := b.remote.ListFilters(ctx, tableID)
	if err != nil {
		return models.SavedFilter{}, fmt.Errorf("list filters of %s: %w", tableID, err)
	}
	if f, ok := b.findStandard(filters); ok {
		return f, nil
	}

	created, err := b.remote.CreateFilter(ctx, models.FilterInput{
		TableID:    tableID,
		Name:       b.name,
		Conditions: []models.FilterCondition{},
		Operators:  []models.LogicalOp{},
		IsStandard: true,
	})
	switch {
	case errors.Is(err, filterclient.ErrAlreadyExists):
		filters, err = b.remote.ListFilters(ctx, tableID)
		if err != nil {
			return models.SavedFilter{}, fmt.Errorf("list filters of %s: %w", tableID, err)
		}
		if f, ok := b.findStandard(filters); ok {
			return f, nil
		}
		return models.SavedFilter{}, fmt.Errorf("%s: %w", tableID, ErrStandardMissing)
	case err != nil:
		return models.SavedFilter{}, fmt.Errorf("create standard filter for %s: %w", tableID, err)
	}

	b.logger.Info(ctx, "standard filter created", "table", tableID, "id", created.ID)
	if b.cache != nil {
		if err := b.cache.Refresh(ctx, tableID); err != nil {
			b.logger.Error(ctx, "refresh after standard filter create", err, "table", tableID)
		}
	}
	return created, nil
}

func (b *Bootstrapper) findStandard(filters []*models.SavedFilter) (models.SavedFilter, bool) {
	for _, f := range filters {
		if f != nil && f.IsStandard {
			return *f, true
		}
	}
	for _, f := range filters {
		if f != nil && (f.Name == b.name || slices.Contains(b.legacy, f.Name)) {
			return *f, true
		}
	}
	return models.SavedFilter{}, false
}

// EnsureAll bootstraps several tables concurrently and returns their
// standard filters in input order.
func (b *Bootstrapper) EnsureAll(ctx context.Context, tableIDs ...string) ([]models.SavedFilter, error) {
	out := make([]models.SavedFilter, len(tableIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, tableID := range tableIDs {
		g.Go(func() error {
			f, err := b.Ensure(gctx, tableID)
			if err != nil {
				return err
			}
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
