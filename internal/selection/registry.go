package selection

import (
	"sync"

	"github.com/shinyes/filterdeck/internal/models"
)

// Registry tracks the live controllers of every table so filter deletions
// and edits reach each view showing them.
type Registry struct {
	mu     sync.Mutex
	tables map[string]map[*Controller]struct{}
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]map[*Controller]struct{})}
}

func (r *Registry) Register(c *Controller) (unregister func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tables[c.tableID]
	if !ok {
		set = make(map[*Controller]struct{})
		r.tables[c.tableID] = set
	}
	set[c] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.tables[c.tableID], c)
			if len(r.tables[c.tableID]) == 0 {
				delete(r.tables, c.tableID)
			}
		})
	}
}

func (r *Registry) Controllers(tableID string) []*Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Controller, 0, len(r.tables[tableID]))
	for c := range r.tables[tableID] {
		out = append(out, c)
	}
	return out
}

// FilterDeleted clears the active identity of every view of tableID that
// shows filter id and reports how many were affected.
func (r *Registry) FilterDeleted(tableID string, id int64) int {
	n := 0
	for _, c := range r.Controllers(tableID) {
		if c.FilterDeleted(id) {
			n++
		}
	}
	return n
}

func (r *Registry) FilterUpdated(f models.SavedFilter) int {
	n := 0
	for _, c := range r.Controllers(f.TableID) {
		if c.FilterUpdated(f) {
			n++
		}
	}
	return n
}
