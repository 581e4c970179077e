// Package filterclienttest provides a call-recording Remote for tests.
package filterclienttest

import (
	"context"
	"sync"

	"github.com/shinyes/filterdeck/internal/filterclient"
	"github.com/shinyes/filterdeck/internal/models"
)

// Recorder wraps a Remote, counts calls per method and can hold list calls
// or fail any method on demand.
type Recorder struct {
	filterclient.Remote

	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	gate   chan struct{}
	Listed chan string
}

func NewRecorder(inner filterclient.Remote) *Recorder {
	return &Recorder{
		Remote: inner,
		calls:  make(map[string]int),
		fail:   make(map[string]error),
		Listed: make(chan string, 64),
	}
}

// Hold makes list calls block until Release.
func (r *Recorder) Hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
}

func (r *Recorder) Release() {
	r.mu.Lock()
	gate := r.gate
	r.gate = nil
	r.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

// Fail makes method return err until Fail(method, nil).
func (r *Recorder) Fail(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, method)
		return
	}
	r.fail[method] = err
}

func (r *Recorder) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *Recorder) enter(method string) (chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method]++
	return r.gate, r.fail[method]
}

func (r *Recorder) list(ctx context.Context, method, tableID string) error {
	gate, err := r.enter(method)
	select {
	case r.Listed <- method + ":" + tableID:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (r *Recorder) ListFilters(ctx context.Context, tableID string) ([]*models.SavedFilter, error) {
	if err := r.list(ctx, "ListFilters", tableID); err != nil {
		return nil, err
	}
	return r.Remote.ListFilters(ctx, tableID)
}

func (r *Recorder) ListGroups(ctx context.Context, tableID string) ([]*models.FilterGroup, error) {
	if err := r.list(ctx, "ListGroups", tableID); err != nil {
		return nil, err
	}
	return r.Remote.ListGroups(ctx, tableID)
}

func (r *Recorder) CreateFilter(ctx context.Context, in models.FilterInput) (models.SavedFilter, error) {
	if _, err := r.enter("CreateFilter"); err != nil {
		return models.SavedFilter{}, err
	}
	return r.Remote.CreateFilter(ctx, in)
}

func (r *Recorder) UpdateFilter(ctx context.Context, id int64, patch models.FilterPatch) (models.SavedFilter, error) {
	if _, err := r.enter("UpdateFilter"); err != nil {
		return models.SavedFilter{}, err
	}
	return r.Remote.UpdateFilter(ctx, id, patch)
}

func (r *Recorder) DeleteFilter(ctx context.Context, id int64) error {
	if _, err := r.enter("DeleteFilter"); err != nil {
		return err
	}
	return r.Remote.DeleteFilter(ctx, id)
}

func (r *Recorder) CreateGroup(ctx context.Context, tableID, name string) (models.FilterGroup, error) {
	if _, err := r.enter("CreateGroup"); err != nil {
		return models.FilterGroup{}, err
	}
	return r.Remote.CreateGroup(ctx, tableID, name)
}

func (r *Recorder) UpdateGroup(ctx context.Context, id int64, name string) (models.FilterGroup, error) {
	if _, err := r.enter("UpdateGroup"); err != nil {
		return models.FilterGroup{}, err
	}
	return r.Remote.UpdateGroup(ctx, id, name)
}

func (r *Recorder) DeleteGroup(ctx context.Context, id int64) error {
	if _, err := r.enter("DeleteGroup"); err != nil {
		return err
	}
	return r.Remote.DeleteGroup(ctx, id)
}

func (r *Recorder) AddFilterToGroup(ctx context.Context, filterID, groupID int64) error {
	if _, err := r.enter("AddFilterToGroup"); err != nil {
		return err
	}
	return r.Remote.AddFilterToGroup(ctx, filterID, groupID)
}

func (r *Recorder) RemoveFilterFromGroup(ctx context.Context, filterID int64) error {
	if _, err := r.enter("RemoveFilterFromGroup"); err != nil {
		return err
	}
	return r.Remote.RemoveFilterFromGroup(ctx, filterID)
}
