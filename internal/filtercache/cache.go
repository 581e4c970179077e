package filtercache

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shinyes/filterdeck/internal/filterclient"
	"github.com/shinyes/filterdeck/internal/identity"
	"github.com/shinyes/filterdeck/internal/logging"
	"github.com/shinyes/filterdeck/internal/models"
)

const (
	DefaultTTL           = 60 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultMaxTables     = 20
	DefaultMaxFilters    = 50
)

type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxTables     int
	MaxFilters    int
	Now           func() time.Time
	Logger        logging.Logger
}

func DefaultOptions() Options {
	return Options{
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
		MaxTables:     DefaultMaxTables,
		MaxFilters:    DefaultMaxFilters,
	}
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.MaxTables <= 0 {
		o.MaxTables = DefaultMaxTables
	}
	if o.MaxFilters <= 0 {
		o.MaxFilters = DefaultMaxFilters
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	return o
}

type entry struct {
	filters  []models.SavedFilter
	groups   []models.FilterGroup
	loadedAt time.Time
}

// Cache is the process-wide authority for the saved filters and groups of
// each table. It is the only writer of its own state.
type Cache struct {
	remote filterclient.Remote
	opts   Options
	flight singleflight.Group

	mu         sync.RWMutex
	entries    map[string]*entry
	loading    map[string]int
	errs       map[string]string
	written    map[string]uint64
	known      map[string]struct{}
	epochs     map[string]uint64
	generation uint64
	seq        uint64
	listeners  map[int]func(tableID string)
	nextListen int

	cronMu sync.Mutex
	cron   *cron.Cron
}

func New(remote filterclient.Remote, opts Options) *Cache {
	return &Cache{
		remote:    remote,
		opts:      opts.withDefaults(),
		entries:   make(map[string]*entry),
		loading:   make(map[string]int),
		errs:      make(map[string]string),
		written:   make(map[string]uint64),
		known:     make(map[string]struct{}),
		epochs:    make(map[string]uint64),
		listeners: make(map[int]func(string)),
	}
}

// Load returns the filters of tableID. A populated, unexpired entry is
// returned without I/O; concurrent misses for the same table share one fetch.
// Fetch failures are recorded under Err and yield an empty list.
func (c *Cache) Load(ctx context.Context, tableID string) []models.SavedFilter {
	if filters, ok := c.fresh(tableID); ok {
		return filters
	}

	c.mu.Lock()
	c.known[tableID] = struct{}{}
	c.mu.Unlock()

	v, _, _ := c.flight.Do(tableID, func() (any, error) {
		filters, err := c.fetch(ctx, tableID)
		if err != nil {
			return []models.SavedFilter{}, nil
		}
		return filters, nil
	})
	filters, _ := v.([]models.SavedFilter)
	if filters == nil {
		filters = []models.SavedFilter{}
	}
	return slices.Clone(filters)
}

// Refresh re-fetches tableID regardless of TTL and overwrites its entry.
func (c *Cache) Refresh(ctx context.Context, tableID string) error {
	c.mu.Lock()
	c.known[tableID] = struct{}{}
	c.mu.Unlock()

	_, err := c.fetch(ctx, tableID)
	return err
}

func (c *Cache) fresh(tableID string) ([]models.SavedFilter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tableID]
	if !ok || c.expired(e, c.opts.Now()) {
		return nil, false
	}
	return slices.Clone(e.filters), true
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.loadedAt) >= c.opts.TTL
}

// fetch lists filters and groups concurrently and writes the result, unless
// a newer fetch already landed or the table was cleared or invalidated in
// the meantime.
func (c *Cache) fetch(ctx context.Context, tableID string) ([]models.SavedFilter, error) {
	c.mu.Lock()
	gen := c.generation
	epoch := c.epochs[tableID]
	c.seq++
	ticket := c.seq
	c.loading[tableID]++
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	var (
		rawFilters []*models.SavedFilter
		rawGroups  []*models.FilterGroup
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fs, err := c.remote.ListFilters(gctx, tableID)
		if err != nil {
			return fmt.Errorf("list filters: %w", err)
		}
		rawFilters = fs
		return nil
	})
	g.Go(func() error {
		gs, err := c.remote.ListGroups(gctx, tableID)
		if err != nil {
			return fmt.Errorf("list groups: %w", err)
		}
		rawGroups = gs
		return nil
	})
	err := g.Wait()

	filters := normalizeFilters(rawFilters)
	groups := normalizeGroups(rawGroups)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		// cleared while in flight; the result belongs to a previous identity
		return []models.SavedFilter{}, err
	}
	if c.epochs[tableID] != epoch {
		c.mu.Unlock()
		return []models.SavedFilter{}, err
	}
	if c.loading[tableID]--; c.loading[tableID] <= 0 {
		delete(c.loading, tableID)
	}
	if err != nil {
		if ticket > c.written[tableID] {
			c.errs[tableID] = err.Error()
			if e, ok := c.entries[tableID]; ok && c.expired(e, c.opts.Now()) {
				delete(c.entries, tableID)
			}
		}
		c.mu.Unlock()
		c.opts.Logger.Error(ctx, "load saved filters", err, "table", tableID)
		return []models.SavedFilter{}, err
	}
	if ticket < c.written[tableID] {
		c.mu.Unlock()
		return filters, nil
	}
	c.entries[tableID] = &entry{filters: filters, groups: groups, loadedAt: c.opts.Now()}
	c.written[tableID] = ticket
	delete(c.errs, tableID)
	c.mu.Unlock()

	c.notify(tableID)
	return slices.Clone(filters), nil
}

func normalizeFilters(raw []*models.SavedFilter) []models.SavedFilter {
	out := make([]models.SavedFilter, 0, len(raw))
	for _, f := range raw {
		if f == nil || f.ID <= 0 {
			continue
		}
		out = append(out, *f)
	}
	return out
}

func normalizeGroups(raw []*models.FilterGroup) []models.FilterGroup {
	out := make([]models.FilterGroup, 0, len(raw))
	for _, g := range raw {
		if g == nil || g.ID <= 0 {
			continue
		}
		group := *g
		group.Filters = normalizeFilters(toPointers(g.Filters))
		out = append(out, group)
	}
	return out
}

func toPointers(filters []models.SavedFilter) []*models.SavedFilter {
	out := make([]*models.SavedFilter, len(filters))
	for i := range filters {
		out[i] = &filters[i]
	}
	return out
}

// Filters returns the cached filters of tableID without triggering I/O.
func (c *Cache) Filters(tableID string) []models.SavedFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[tableID]; ok {
		return slices.Clone(e.filters)
	}
	return nil
}

func (c *Cache) Groups(tableID string) []models.FilterGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[tableID]; ok {
		return slices.Clone(e.groups)
	}
	return nil
}

// Filter looks up one cached filter by id.
func (c *Cache) Filter(tableID string, id int64) (models.SavedFilter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tableID]
	if !ok {
		return models.SavedFilter{}, false
	}
	for _, f := range e.filters {
		if f.ID == id {
			return f, true
		}
	}
	return models.SavedFilter{}, false
}

func (c *Cache) IsLoading(tableID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading[tableID] > 0
}

// Err returns the last fetch error of tableID, or "" after a successful load.
func (c *Cache) Err(tableID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errs[tableID]
}

func (c *Cache) LoadedAt(tableID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[tableID]; ok {
		return e.loadedAt, true
	}
	return time.Time{}, false
}

// Tables lists the cached table ids.
func (c *Cache) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// SweepStats reports what one eviction pass removed.
type SweepStats struct {
	Expired int
	Evicted int
	Trimmed int
}

// Sweep drops expired entries, then evicts the least recently populated
// tables above MaxTables, then keeps only the MaxFilters newest filters of
// each remaining table.
func (c *Cache) Sweep() SweepStats {
	var stats SweepStats
	var touched []string

	c.mu.Lock()
	now := c.opts.Now()
	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
			touched = append(touched, id)
			stats.Expired++
		}
	}

	if over := len(c.entries) - c.opts.MaxTables; over > 0 {
		ids := make([]string, 0, len(c.entries))
		for id := range c.entries {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return c.entries[ids[i]].loadedAt.Before(c.entries[ids[j]].loadedAt)
		})
		for _, id := range ids[:over] {
			delete(c.entries, id)
			touched = append(touched, id)
			stats.Evicted++
		}
	}

	for id, e := range c.entries {
		if len(e.filters) <= c.opts.MaxFilters {
			continue
		}
		stats.Trimmed += len(e.filters) - c.opts.MaxFilters
		e.filters = newest(e.filters, c.opts.MaxFilters)
		touched = append(touched, id)
	}
	c.mu.Unlock()

	if len(touched) > 0 {
		c.opts.Logger.Info(context.Background(), "filter cache swept",
			"expired", stats.Expired, "evicted", stats.Evicted, "trimmed", stats.Trimmed)
	}
	for _, id := range touched {
		c.notify(id)
	}
	return stats
}

// newest keeps the limit most recently created filters in their original order.
func newest(filters []models.SavedFilter, limit int) []models.SavedFilter {
	idx := make([]int, len(filters))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return filters[idx[a]].CreatedAt.After(filters[idx[b]].CreatedAt)
	})
	keep := make(map[int]bool, limit)
	for _, i := range idx[:limit] {
		keep[i] = true
	}
	out := make([]models.SavedFilter, 0, limit)
	for i, f := range filters {
		if keep[i] {
			out = append(out, f)
		}
	}
	return out
}

// Clear drops every entry, error and loading marker. Fetches still in flight
// finish but their results are discarded.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.generation++
	known := c.known
	c.entries = make(map[string]*entry)
	c.loading = make(map[string]int)
	c.errs = make(map[string]string)
	c.written = make(map[string]uint64)
	c.known = make(map[string]struct{})
	c.mu.Unlock()

	for id := range known {
		c.flight.Forget(id)
	}
	c.notify("")
}

// Invalidate drops the entry, error and loading marker of one table. A fetch
// of that table still in flight is discarded, and the next Load fetches anew.
func (c *Cache) Invalidate(tableID string) {
	c.mu.Lock()
	c.epochs[tableID]++
	delete(c.entries, tableID)
	delete(c.errs, tableID)
	delete(c.loading, tableID)
	c.mu.Unlock()

	c.flight.Forget(tableID)
	c.notify(tableID)
}

// WatchIdentity clears the cache whenever the active user or role changes.
func (c *Cache) WatchIdentity(n identity.Notifier) (unsubscribe func()) {
	return n.Subscribe(func(prev, next identity.Identity) {
		c.opts.Logger.Info(context.Background(), "identity changed, clearing filter cache",
			"user", next.UserID, "role", next.Role)
		c.Clear()
	})
}

// Subscribe registers fn to run after a table's entry changes. An empty
// table id means every table was cleared.
func (c *Cache) Subscribe(fn func(tableID string)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListen
	c.nextListen++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cache) notify(tableID string) {
	c.mu.RLock()
	fns := make([]func(string), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(tableID)
	}
}

// Start runs Sweep every SweepInterval until Stop.
func (c *Cache) Start() error {
	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.cron != nil {
		return nil
	}
	sched := cron.New()
	spec := fmt.Sprintf("@every %s", c.opts.SweepInterval)
	if _, err := sched.AddFunc(spec, func() { c.Sweep() }); err != nil {
		return fmt.Errorf("schedule filter cache sweep: %w", err)
	}
	sched.Start()
	c.cron = sched
	return nil
}

func (c *Cache) Stop() {
	c.cronMu.Lock()
	sched := c.cron
	c.cron = nil
	c.cronMu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
}
