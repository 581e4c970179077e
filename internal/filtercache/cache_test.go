package filtercache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/filterclient"
	"github.com/shinyes/filterdeck/internal/filterclient/filterclienttest"
	"github.com/shinyes/filterdeck/internal/identity"
	"github.com/shinyes/filterdeck/internal/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock  *clock
	memory *filterclient.Memory
	remote *filterclienttest.Recorder
	cache  *Cache
}

func newFixture(t *testing.T, tweak func(*Options)) *fixture {
	t.Helper()
	clk := newClock()
	mem := filterclient.NewMemory(clk.Now)
	rec := filterclienttest.NewRecorder(mem)
	opts := DefaultOptions()
	opts.Now = clk.Now
	if tweak != nil {
		tweak(&opts)
	}
	return &fixture{clock: clk, memory: mem, remote: rec, cache: New(rec, opts)}
}

func (f *fixture) seed(t *testing.T, tableID string, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := f.memory.CreateFilter(context.Background(), models.FilterInput{TableID: tableID, Name: name})
		require.NoError(t, err)
	}
}

func names(filters []models.SavedFilter) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		out = append(out, f.Name)
	}
	return out
}

func TestLoadScenarioStandardFilter(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "branches-table", "Alle")

	filters := f.cache.Load(context.Background(), "branches-table")
	require.Len(t, filters, 1)
	assert.Equal(t, "Alle", filters[0].Name)
	assert.Empty(t, filters[0].Conditions)

	e := condition.NewEvaluator()
	row := condition.MapAccessor(map[string]any{"name": "La Familia Hostel", "city": "Medellín"})
	assert.True(t, e.Evaluate(row, filters[0].Conditions, filters[0].Operators))
}

func TestLoadCoalescesConcurrentCalls(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "requests-table", "Open", "Mine")
	f.remote.Hold()

	const callers = 8
	results := make([][]models.SavedFilter, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.cache.Load(context.Background(), "requests-table")
		}(i)
	}

	<-f.remote.Listed
	assert.True(t, f.cache.IsLoading("requests-table"))
	time.Sleep(50 * time.Millisecond)
	f.remote.Release()
	wg.Wait()

	assert.Equal(t, 1, f.remote.Calls("ListFilters"))
	assert.Equal(t, 1, f.remote.Calls("ListGroups"))
	for _, got := range results {
		assert.Equal(t, []string{"Open", "Mine"}, names(got))
	}
	assert.False(t, f.cache.IsLoading("requests-table"))
}

func TestLoadPopulatedEntryIssuesNoFetch(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "todos-table", "Today")

	f.cache.Load(context.Background(), "todos-table")
	before := f.remote.Total()
	f.clock.Advance(59 * time.Minute)
	got := f.cache.Load(context.Background(), "todos-table")

	assert.Equal(t, before, f.remote.Total())
	assert.Equal(t, []string{"Today"}, names(got))
}

func TestLoadDifferentTablesDoNotCoalesce(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Load(context.Background(), "a")
	f.cache.Load(context.Background(), "b")
	assert.Equal(t, 2, f.remote.Calls("ListFilters"))
}

func TestTTLEvictionForcesRefetch(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "branches-table", "Alle")
	f.cache.Load(context.Background(), "branches-table")

	f.clock.Advance(61 * time.Minute)
	stats := f.cache.Sweep()
	assert.Equal(t, 1, stats.Expired)
	assert.Nil(t, f.cache.Filters("branches-table"))
	assert.Nil(t, f.cache.Groups("branches-table"))
	_, ok := f.cache.LoadedAt("branches-table")
	assert.False(t, ok)

	f.cache.Load(context.Background(), "branches-table")
	assert.Equal(t, 2, f.remote.Calls("ListFilters"))
}

func TestExpiredEntryIsAMissBeforeSweep(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.Load(context.Background(), "branches-table")
	f.clock.Advance(time.Hour)
	f.cache.Load(context.Background(), "branches-table")
	assert.Equal(t, 2, f.remote.Calls("ListFilters"))
}

func TestSweepEvictsLeastRecentlyPopulatedTables(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxTables = 2 })
	for _, table := range []string{"first", "second", "third"} {
		f.cache.Load(context.Background(), table)
		f.clock.Advance(time.Minute)
	}
	require.NoError(t, f.cache.Refresh(context.Background(), "first"))

	stats := f.cache.Sweep()
	assert.Equal(t, 1, stats.Evicted)
	assert.Equal(t, []string{"first", "third"}, f.cache.Tables())
}

func TestSweepKeepsNewestFilters(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxFilters = 2 })
	for _, name := range []string{"oldest", "older", "newer", "newest"} {
		f.seed(t, "requests-table", name)
		f.clock.Advance(time.Second)
	}
	require.Len(t, f.cache.Load(context.Background(), "requests-table"), 4)

	stats := f.cache.Sweep()
	assert.Equal(t, 2, stats.Trimmed)
	assert.Equal(t, []string{"newer", "newest"}, names(f.cache.Filters("requests-table")))

	all, err := f.memory.ListFilters(context.Background(), "requests-table")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLoadFailureRecordsErrorAndAllowsRetry(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "requests-table", "Open")
	f.remote.Fail("ListGroups", errors.New("connection refused"))

	got := f.cache.Load(context.Background(), "requests-table")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, f.cache.Err("requests-table"), "connection refused")
	assert.False(t, f.cache.IsLoading("requests-table"))
	assert.Nil(t, f.cache.Filters("requests-table"))

	f.remote.Fail("ListGroups", nil)
	got = f.cache.Load(context.Background(), "requests-table")
	assert.Equal(t, []string{"Open"}, names(got))
	assert.Empty(t, f.cache.Err("requests-table"))
}

func TestRefreshIgnoresTTL(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "todos-table", "Mine")
	f.cache.Load(context.Background(), "todos-table")

	f.seed(t, "todos-table", "Overdue")
	assert.Equal(t, []string{"Mine"}, names(f.cache.Load(context.Background(), "todos-table")))

	require.NoError(t, f.cache.Refresh(context.Background(), "todos-table"))
	assert.Equal(t, []string{"Mine", "Overdue"}, names(f.cache.Filters("todos-table")))
}

func TestRefreshFailureKeepsEntry(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "todos-table", "Mine")
	f.cache.Load(context.Background(), "todos-table")

	f.remote.Fail("ListFilters", errors.New("timeout"))
	err := f.cache.Refresh(context.Background(), "todos-table")
	require.Error(t, err)
	assert.Equal(t, []string{"Mine"}, names(f.cache.Filters("todos-table")))
	assert.Contains(t, f.cache.Err("todos-table"), "timeout")
}

func TestGroupsAreCachedWithFilters(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "requests-table", "Open", "Closed")
	group, err := f.memory.CreateGroup(ctx, "requests-table", "Status")
	require.NoError(t, err)
	require.NoError(t, f.memory.AddFilterToGroup(ctx, 1, group.ID))

	f.cache.Load(ctx, "requests-table")
	groups := f.cache.Groups("requests-table")
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"Open"}, names(groups[0].Filters))

	cached, ok := f.cache.Filter("requests-table", 1)
	require.True(t, ok)
	assert.True(t, cached.Grouped())
}

func TestIdentityChangeClearsEverything(t *testing.T) {
	f := newFixture(t, nil)
	session := identity.NewSession(identity.Identity{UserID: 1, Role: "admin"})
	unwatch := f.cache.WatchIdentity(session)
	defer unwatch()

	f.seed(t, "branches-table", "Alle")
	f.seed(t, "requests-table", "Open")
	f.cache.Load(context.Background(), "branches-table")
	f.cache.Load(context.Background(), "requests-table")

	f.remote.Hold()
	done := make(chan []models.SavedFilter)
	go func() { done <- f.cache.Load(context.Background(), "todos-table") }()
	for msg := range f.remote.Listed {
		if msg == "ListFilters:todos-table" || msg == "ListGroups:todos-table" {
			break
		}
	}
	require.True(t, f.cache.IsLoading("todos-table"))

	session.Switch(identity.Identity{UserID: 1, Role: "staff"})

	assert.Empty(t, f.cache.Tables())
	assert.Nil(t, f.cache.Filters("branches-table"))
	assert.Nil(t, f.cache.Groups("requests-table"))
	assert.False(t, f.cache.IsLoading("todos-table"))

	f.remote.Release()
	assert.Empty(t, <-done)
	assert.Nil(t, f.cache.Filters("todos-table"))

	// the in-flight marker is gone, so the next load fetches again
	f.cache.Load(context.Background(), "todos-table")
	assert.Equal(t, 4, f.remote.Calls("ListFilters"))
}

func TestInvalidateDropsOneTable(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "requests-table", "Open")
	f.seed(t, "branches-table", "Alle")
	f.cache.Load(context.Background(), "requests-table")
	f.cache.Load(context.Background(), "branches-table")

	f.remote.Fail("ListGroups", errors.New("offline"))
	require.Error(t, f.cache.Refresh(context.Background(), "requests-table"))
	require.NotEmpty(t, f.cache.Err("requests-table"))
	f.remote.Fail("ListGroups", nil)

	f.cache.Invalidate("requests-table")
	assert.Nil(t, f.cache.Filters("requests-table"))
	assert.Empty(t, f.cache.Err("requests-table"))
	_, ok := f.cache.LoadedAt("requests-table")
	assert.False(t, ok)
	assert.Equal(t, []string{"branches-table"}, f.cache.Tables())

	assert.Equal(t, []string{"Open"}, names(f.cache.Load(context.Background(), "requests-table")))
	assert.Equal(t, 4, f.remote.Calls("ListFilters"))
}

func TestInvalidateDiscardsFetchInFlight(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "todos-table", "Mine")

	f.remote.Hold()
	done := make(chan []models.SavedFilter)
	go func() { done <- f.cache.Load(context.Background(), "todos-table") }()
	for msg := range f.remote.Listed {
		if msg == "ListFilters:todos-table" || msg == "ListGroups:todos-table" {
			break
		}
	}
	require.True(t, f.cache.IsLoading("todos-table"))

	f.cache.Invalidate("todos-table")
	assert.False(t, f.cache.IsLoading("todos-table"))

	f.remote.Release()
	assert.Empty(t, <-done)
	assert.Nil(t, f.cache.Filters("todos-table"))
	assert.False(t, f.cache.IsLoading("todos-table"))

	assert.Equal(t, []string{"Mine"}, names(f.cache.Load(context.Background(), "todos-table")))
	assert.Equal(t, 2, f.remote.Calls("ListFilters"))
}

func TestSubscribeSeesWrites(t *testing.T) {
	f := newFixture(t, nil)
	var mu sync.Mutex
	var seen []string
	unsubscribe := f.cache.Subscribe(func(tableID string) {
		mu.Lock()
		seen = append(seen, tableID)
		mu.Unlock()
	})

	f.cache.Load(context.Background(), "branches-table")
	f.cache.Clear()
	unsubscribe()
	f.cache.Load(context.Background(), "branches-table")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"branches-table", ""}, seen)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.SweepInterval = time.Hour })
	require.NoError(t, f.cache.Start())
	require.NoError(t, f.cache.Start())
	f.cache.Stop()
	f.cache.Stop()
}
