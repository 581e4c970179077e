package selection

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/shinyes/filterdeck/internal/condition"
	"github.com/shinyes/filterdeck/internal/identity"
	"github.com/shinyes/filterdeck/internal/models"
)

// Loader is the part of the filter cache a view depends on.
type Loader interface {
	Load(ctx context.Context, tableID string) []models.SavedFilter
}

// DefaultRule lists the filter names to select on first mount, most
// specific first.
type DefaultRule func() []string

// Names tries each name in order.
func Names(names ...string) DefaultRule {
	return func() []string { return slices.Clone(names) }
}

// ForIdentity tries the name personal derives from the active identity, then
// the fallback names.
func ForIdentity(current func() identity.Identity, personal func(identity.Identity) string, fallback ...string) DefaultRule {
	return func() []string {
		out := make([]string, 0, len(fallback)+1)
		if current != nil && personal != nil {
			if name := strings.TrimSpace(personal(current())); name != "" {
				out = append(out, name)
			}
		}
		return append(out, fallback...)
	}
}

// State is a snapshot of what a view is filtering by. ActiveFilterID is 0
// for an ad-hoc or empty predicate. Version increases with every change of
// the controller, so listeners can tell an older snapshot from a newer one.
type State struct {
	Version          uint64
	TableID          string
	ActiveFilterID   int64
	ActiveFilterName string
	Conditions       []models.FilterCondition
	Operators        []models.LogicalOp
	SortDirections   []models.SortDirection
	Initialized      bool
}

func (s State) HasActiveFilter() bool {
	return s.ActiveFilterID > 0
}

func (s State) clone() State {
	s.Conditions = slices.Clone(s.Conditions)
	s.Operators = slices.Clone(s.Operators)
	s.SortDirections = slices.Clone(s.SortDirections)
	return s
}

type Config struct {
	TableID   string
	Source    Loader
	Evaluator *condition.Evaluator
	Defaults  DefaultRule
	Registry  *Registry
}

// Controller tracks the active saved filter and predicate of one view.
type Controller struct {
	tableID  string
	source   Loader
	eval     *condition.Evaluator
	defaults DefaultRule

	mu        sync.RWMutex
	state     State
	predicate func(condition.Accessor) bool
	version   uint64
	listeners []listener
	nextID    int

	unregister func()
}

func NewController(cfg Config) *Controller {
	eval := cfg.Evaluator
	if eval == nil {
		eval = condition.NewEvaluator()
	}
	c := &Controller{
		tableID:   cfg.TableID,
		source:    cfg.Source,
		eval:      eval,
		defaults:  cfg.Defaults,
		state:     State{TableID: cfg.TableID},
		predicate: matchAll,
	}
	if cfg.Registry != nil {
		c.unregister = cfg.Registry.Register(c)
	}
	return c
}

func matchAll(condition.Accessor) bool { return true }

func (c *Controller) TableID() string {
	return c.tableID
}

// Init loads the table's filters and selects the first default that exists,
// falling back to the table's standard filter. It leaves the predicate empty
// when nothing matches and does not override a change made while loading.
func (c *Controller) Init(ctx context.Context) (selected bool) {
	c.mu.RLock()
	version := c.version
	c.mu.RUnlock()

	var filters []models.SavedFilter
	if c.source != nil {
		filters = c.source.Load(ctx, c.tableID)
	}
	choice, found := pickDefault(filters, c.defaults)

	c.mu.Lock()
	changed := c.version != version
	if found && !changed {
		c.setLocked(choice.ID, choice.Name, choice.Conditions, choice.Operators, choice.SortDirections)
	}
	c.state.Initialized = true
	c.version++
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snapshot)
	return found && !changed
}

func pickDefault(filters []models.SavedFilter, rule DefaultRule) (models.SavedFilter, bool) {
	if rule != nil {
		for _, name := range rule() {
			for _, f := range filters {
				if f.Name == name {
					return f, true
				}
			}
		}
	}
	for _, f := range filters {
		if f.IsStandard {
			return f, true
		}
	}
	return models.SavedFilter{}, false
}

// ApplyConditions replaces the predicate with an ad-hoc one and clears the
// active filter identity.
func (c *Controller) ApplyConditions(conditions []models.FilterCondition, operators []models.LogicalOp) {
	c.update(func() {
		c.setLocked(0, "", conditions, operators, nil)
	})
}

// Reset clears the predicate so every row matches.
func (c *Controller) Reset() {
	c.update(func() {
		c.setLocked(0, "", nil, nil, nil)
	})
}

// SelectSavedFilter makes f active. Identity and predicate change together.
func (c *Controller) SelectSavedFilter(f models.SavedFilter) {
	c.update(func() {
		c.setLocked(f.ID, f.Name, f.Conditions, f.Operators, f.SortDirections)
	})
}

// FilterDeleted drops the active identity if id was the active filter. The
// conditions stay applied as an ad-hoc predicate.
func (c *Controller) FilterDeleted(id int64) bool {
	hit := false
	c.update(func() {
		if c.state.ActiveFilterID != id || id == 0 {
			return
		}
		hit = true
		c.state.ActiveFilterID = 0
		c.state.ActiveFilterName = ""
		c.version++
	})
	return hit
}

// FilterUpdated re-applies f if it is the active filter.
func (c *Controller) FilterUpdated(f models.SavedFilter) bool {
	hit := false
	c.update(func() {
		if f.ID == 0 || c.state.ActiveFilterID != f.ID {
			return
		}
		hit = true
		c.setLocked(f.ID, f.Name, f.Conditions, f.Operators, f.SortDirections)
	})
	return hit
}

func (c *Controller) update(mutate func()) {
	c.mu.Lock()
	before := c.version
	mutate()
	if c.version == before {
		c.mu.Unlock()
		return
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snapshot)
}

func (c *Controller) snapshotLocked() State {
	s := c.state.clone()
	s.Version = c.version
	return s
}

func (c *Controller) setLocked(id int64, name string, conditions []models.FilterCondition, operators []models.LogicalOp, sorts []models.SortDirection) {
	c.state.ActiveFilterID = id
	c.state.ActiveFilterName = name
	c.state.Conditions = slices.Clone(conditions)
	c.state.Operators = slices.Clone(operators)
	c.state.SortDirections = slices.Clone(sorts)
	c.predicate = c.eval.Predicate(conditions, operators)
	c.version++
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Matches applies the current predicate to one row.
func (c *Controller) Matches(get condition.Accessor) bool {
	c.mu.RLock()
	pred := c.predicate
	c.mu.RUnlock()
	return pred(get)
}

// Filter applies the controller's current predicate to rows.
func Filter[T any](c *Controller, rows []T, access func(T) condition.Accessor) []T {
	c.mu.RLock()
	pred := c.predicate
	c.mu.RUnlock()
	return condition.FilterRows(rows, access, pred)
}

type listener struct {
	id int
	fn func(State)
}

// OnChange registers fn to receive every new state. Listeners run in
// registration order on the goroutine that made the change. A listener that
// changes the controller again sees the newer state delivered before the
// older one reaches later listeners; compare State.Version to tell them apart.
func (c *Controller) OnChange(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
		c.mu.Unlock()
	}
}

func (c *Controller) emit(s State) {
	c.mu.RLock()
	fns := make([]func(State), 0, len(c.listeners))
	for _, l := range c.listeners {
		fns = append(fns, l.fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Close detaches the controller from its registry.
func (c *Controller) Close() {
	if c.unregister != nil {
		c.unregister()
	}
}
