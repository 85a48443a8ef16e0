// Package taskview holds the locally displayed task collection and keeps it
// in step with REST loads and push-channel events.
package taskview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/logging"
	"github.com/nhle/taskboard/internal/metrics"
	"github.com/nhle/taskboard/internal/model"
)

// ErrAuthRequired is returned by Load when the service demands a login.
// The caller is expected to route to the authentication screen.
var ErrAuthRequired = errors.New("authentication required")

// ErrSuperseded is returned by Load when a newer load or a Reset started
// while it was in flight. Its result has been discarded.
var ErrSuperseded = errors.New("load superseded")

// Filter selects which listing endpoint a load uses.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterAssigned Filter = "assigned"
	FilterCreated  Filter = "created"
	FilterOverdue  Filter = "overdue"
)

// Filters returns every filter in display order.
func Filters() []Filter {
	return []Filter{FilterAll, FilterAssigned, FilterCreated, FilterOverdue}
}

// ParseFilter matches s against the known filters; "" means FilterAll.
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return FilterAll, nil
	}
	for _, f := range Filters() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Query describes one load. Status, Priority, SortBy and SortOrder only
// apply to FilterAll; the dashboard endpoints take no parameters.
type Query struct {
	Filter    Filter
	Status    model.Status
	Priority  model.Priority
	SortBy    string
	SortOrder string
}

// Key identifies the query in the snapshot cache.
func (q Query) Key() string {
	f := q.Filter
	if f == "" {
		f = FilterAll
	}
	if f != FilterAll {
		return string(f)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", f, q.Status, q.Priority, q.SortBy, q.SortOrder)
}

// Source is the subset of the REST client a View loads from.
type Source interface {
	ListTasks(ctx context.Context, q api.TaskQuery) ([]model.Task, error)
	ListAssignedToMe(ctx context.Context) ([]model.Task, error)
	ListCreatedByMe(ctx context.Context) ([]model.Task, error)
	ListOverdue(ctx context.Context) ([]model.Task, error)
}

// Snapshotter persists the last successful load.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, key string, tasks []model.Task) error
}

// Stats are the display-only counts shown above the list.
type Stats struct {
	Total        int
	AssignedOpen int
	Overdue      int
}

// Option configures a View.
type Option func(*View)

// WithCache writes every successful load to s.
func WithCache(s Snapshotter) Option {
	return func(v *View) { v.cache = s }
}

// View is the task collection backing the list screen. It is safe for
// concurrent use; channel handlers call into it from the read goroutine.
type View struct {
	src   Source
	cache Snapshotter
	log   zerolog.Logger

	mu       sync.Mutex
	tasks    []model.Task
	query    Query
	loading  bool
	errMsg   string
	loadedAt time.Time
	seq      uint64
	restored bool
}

// New creates an empty View.
func New(src Source, opts ...Option) *View {
	v := &View{
		src:   src,
		log:   logging.WithComponent("taskview"),
		tasks: []model.Task{},
		query: Query{Filter: FilterAll},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Load fetches q and replaces the whole collection on success. On failure
// the previous collection is kept; a 401 is reported as ErrAuthRequired and
// any other failure is recorded as a display message.
func (v *View) Load(ctx context.Context, q Query) error {
	if q.Filter == "" {
		q.Filter = FilterAll
	}

	v.mu.Lock()
	v.seq++
	seq := v.seq
	v.loading = true
	v.mu.Unlock()

	tasks, err := v.fetch(ctx, q)

	v.mu.Lock()
	defer v.mu.Unlock()

	if seq != v.seq {
		return ErrSuperseded
	}
	v.loading = false

	if err != nil {
		if api.IsAuthRequired(err) {
			v.errMsg = ""
			return fmt.Errorf("%w: %w", ErrAuthRequired, err)
		}
		v.errMsg = api.Message(err)
		v.log.Warn().Err(err).Str("filter", string(q.Filter)).Msg("loading tasks")
		return err
	}

	if tasks == nil {
		tasks = []model.Task{}
	}
	v.tasks = tasks
	v.query = q
	v.errMsg = ""
	v.loadedAt = time.Now()
	v.restored = false
	metrics.TasksLoaded.WithLabelValues(string(q.Filter)).Set(float64(len(tasks)))

	if v.cache != nil {
		if err := v.cache.SaveSnapshot(ctx, q.Key(), tasks); err != nil {
			v.log.Warn().Err(err).Msg("saving snapshot")
		}
	}
	return nil
}

func (v *View) fetch(ctx context.Context, q Query) ([]model.Task, error) {
	switch q.Filter {
	case FilterAll:
		return v.src.ListTasks(ctx, api.TaskQuery{
			Status:    q.Status,
			Priority:  q.Priority,
			SortBy:    q.SortBy,
			SortOrder: q.SortOrder,
		})
	case FilterAssigned:
		return v.src.ListAssignedToMe(ctx)
	case FilterCreated:
		return v.src.ListCreatedByMe(ctx)
	case FilterOverdue:
		return v.src.ListOverdue(ctx)
	default:
		return nil, fmt.Errorf("unknown filter %q", q.Filter)
	}
}

// Restore seeds the collection from a cached snapshot. It is ignored once a
// network load has succeeded.
func (v *View) Restore(q Query, tasks []model.Task) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.loadedAt.IsZero() {
		return
	}
	v.tasks = slices.Clone(tasks)
	if v.tasks == nil {
		v.tasks = []model.Task{}
	}
	v.query = q
	v.restored = true
}

// Reset empties the collection and forgets the last query and error.
func (v *View) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	v.tasks = []model.Task{}
	v.query = Query{Filter: FilterAll}
	v.loading = false
	v.errMsg = ""
	v.loadedAt = time.Time{}
	v.restored = false
}

// Tasks returns a copy of the collection in display order.
func (v *View) Tasks() []model.Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.tasks)
}

// Find returns the entry with id.
func (v *View) Find(id string) (model.Task, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range v.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// Query returns the last successfully loaded query.
func (v *View) Query() Query {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// Loading reports whether a load is in flight.
func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Err returns the message of the last failed load, or "".
func (v *View) Err() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

// Stale reports whether the collection came from the cache rather than the network.
func (v *View) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.restored
}

// ApplyUpdate merges t onto the entry with the same id. Fields carried by
// t's JSON encoding override; the rest are kept. Unknown ids are ignored,
// as are updates older than the entry when both carry a version.
// It reports whether an entry changed.
func (v *View) ApplyUpdate(t model.Task) bool {
	raw, err := json.Marshal(t)
	if err != nil {
		v.log.Warn().Err(err).Msg("encoding update")
		return false
	}
	ok, err := v.ApplyUpdateJSON(raw)
	if err != nil {
		v.log.Warn().Err(err).Msg("applying update")
	}
	return ok
}

// Replace applies t as the full representation of the task: a cleared
// description, due date or assignee on t clears the entry too. The version
// and unknown-id rules of ApplyUpdate still hold.
func (v *View) Replace(t model.Task) bool {
	raw, err := t.FullJSON()
	if err != nil {
		v.log.Warn().Err(err).Msg("encoding task")
		return false
	}
	ok, err := v.ApplyUpdateJSON(raw)
	if err != nil {
		v.log.Warn().Err(err).Msg("replacing task")
	}
	return ok
}

// ApplyUpdateJSON merges a raw task payload field by field, so partial
// events and explicit nulls are honored.
func (v *View) ApplyUpdateJSON(raw json.RawMessage) (bool, error) {
	var head struct {
		ID      string `json:"_id"`
		AltID   string `json:"id"`
		Version int64  `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return false, fmt.Errorf("decoding update: %w", err)
	}
	if head.ID == "" {
		head.ID = head.AltID
	}
	if head.ID == "" {
		return false, errors.New("decoding update: missing id")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	idx := slices.IndexFunc(v.tasks, func(t model.Task) bool { return t.ID == head.ID })
	if idx < 0 {
		return false, nil
	}
	current := v.tasks[idx]
	if head.Version > 0 && current.Version > 0 && head.Version < current.Version {
		v.log.Debug().Str("task_id", head.ID).
			Int64("incoming", head.Version).Int64("current", current.Version).
			Msg("ignoring stale update")
		return false, nil
	}

	merged := clone(current)
	if err := json.Unmarshal(raw, &merged); err != nil {
		return false, fmt.Errorf("merging update: %w", err)
	}
	merged.ID = current.ID
	v.tasks[idx] = merged
	return true, nil
}

// ApplyCreate prepends t. It does not check for an existing entry, so a
// create seen both from a direct write and from a broadcast is inserted twice.
func (v *View) ApplyCreate(t model.Task) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tasks = slices.Insert(v.tasks, 0, t)
}

// ApplyDelete removes every entry with id and reports whether any matched.
func (v *View) ApplyDelete(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	before := len(v.tasks)
	v.tasks = slices.DeleteFunc(v.tasks, func(t model.Task) bool { return t.ID == id })
	return len(v.tasks) != before
}

// Stats computes the headline counts against now.
func (v *View) Stats(now time.Time, myID string) Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return ComputeStats(v.tasks, now, myID)
}

// ComputeStats computes the headline counts for tasks against now.
func ComputeStats(tasks []model.Task, now time.Time, myID string) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.IsAssignedTo(myID) && !t.IsCompleted() {
			s.AssignedOpen++
		}
		if t.IsOverdue(now) {
			s.Overdue++
		}
	}
	return s
}

// clone copies t so that decoding into the copy cannot write through
// pointers shared with t.
func clone(t model.Task) model.Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	if t.AssignedTo != nil {
		u := *t.AssignedTo
		t.AssignedTo = &u
	}
	if t.CreatedBy != nil {
		u := *t.CreatedBy
		t.CreatedBy = &u
	}
	return t
}
