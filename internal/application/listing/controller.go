// Package listing manages the state of a paginated, filtered and sorted
// collection fetched through an injected function.
package listing

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/erp/appinv/internal/domain/shared"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
	"github.com/erp/appinv/internal/infrastructure/logger"
	"github.com/erp/appinv/internal/infrastructure/telemetry"
)

// DefaultPerPage is used when Options.PerPage is not set
const DefaultPerPage = 10

// DefaultErrorMessage is shown when a failed fetch carries no message
const DefaultErrorMessage = "Failed to load data"

// FetchFunc loads one page
type FetchFunc[T any] func(ctx context.Context, q shared.ListQuery) (*shared.Page[T], error)

// StalePolicy decides which of several overlapping responses is committed
type StalePolicy string

const (
	// StaleLatestRequest commits only the response of the most recently
	// issued request; older in-flight requests are cancelled and discarded.
	StaleLatestRequest StalePolicy = "latest"
	// StaleLastResponse commits every response, so the last one to resolve wins.
	StaleLastResponse StalePolicy = "last_response"
)

// Options configures a Controller
type Options struct {
	Name           string // used in logs and metrics
	PerPage        int
	InitialPage    int // page fetched by Load, 1 when unset
	DefaultFilters shared.Filters
	DefaultSort    *shared.Sort
	StalePolicy    StalePolicy
	ErrorMessage   string // fallback for errors without text
	Logger         *zap.Logger
	Metrics        *telemetry.ClientMetrics
}

// State is a snapshot of a list. Filters are the applied values,
// PendingFilters the ones being edited.
type State[T any] struct {
	Data           []T
	CurrentPage    int
	ItemsPerPage   int
	TotalPages     int
	TotalItems     int
	Filters        shared.Filters
	PendingFilters shared.Filters
	Sort           *shared.Sort
	IsLoading      bool
	Error          string
}

// Controller holds the state of one list. Every operation that changes the
// query fetches again and blocks until its response has been handled.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Controller[T any] struct {
	fetch FetchFunc[T]
	opts  Options
	log   *zap.Logger

	mu         sync.Mutex
	state      State[T]
	err        error
	seq        uint64
	inFlight   int
	cancelPrev context.CancelFunc

	version uint64 // stamps published snapshots, guarded by mu

	subMu       sync.Mutex
	subscribers map[int]func(State[T])
	nextSub     int

	notifyMu   sync.Mutex
	queued     uint64 // newest version accepted for delivery
	pending    *State[T]
	delivering bool
}

// New creates a controller. Nothing is fetched until Load.
func New[T any](fetch FetchFunc[T], opts Options) *Controller[T] {
	if opts.PerPage < 1 {
		opts.PerPage = DefaultPerPage
	}
	if opts.InitialPage < 1 {
		opts.InitialPage = 1
	}
	if opts.StalePolicy != StaleLastResponse {
		opts.StalePolicy = StaleLatestRequest
	}
	if opts.ErrorMessage == "" {
		opts.ErrorMessage = DefaultErrorMessage
	}
	if opts.Name == "" {
		opts.Name = "list"
	}
	opts.DefaultFilters = opts.DefaultFilters.Clone()

	return &Controller[T]{
		fetch: fetch,
		opts:  opts,
		log:   logger.OrNop(opts.Logger).With(zap.String("list", opts.Name)),
		state: State[T]{
			Data:           []T{},
			CurrentPage:    opts.InitialPage,
			ItemsPerPage:   opts.PerPage,
			Filters:        opts.DefaultFilters.Clone(),
			PendingFilters: opts.DefaultFilters.Clone(),
			Sort:           cloneSort(opts.DefaultSort),
		},
		subscribers: make(map[int]func(State[T])),
	}
}

// State returns a copy of the current state
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Err returns the error of the last committed fetch, nil after a success
func (c *Controller[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Query returns the query the next Refresh would send
func (c *Controller[T]) Query() shared.ListQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryLocked()
}

// Subscribe registers fn to receive a snapshot after every state change.
// Snapshots arrive one at a time and in the order the changes were made;
// a snapshot superseded before it could be delivered is skipped.
// The returned function removes the subscription.
func (c *Controller[T]) Subscribe(fn func(State[T])) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subscribers, id)
	}
}

// Load performs the initial fetch
func (c *Controller[T]) Load(ctx context.Context) {
	c.mutateAndFetch(ctx, nil)
}

// Refresh fetches again with the applied filters, page and sort unchanged
func (c *Controller[T]) Refresh(ctx context.Context) {
	c.mutateAndFetch(ctx, nil)
}

// HandleFilterChange edits a pending filter value. Nothing is fetched.
func (c *Controller[T]) HandleFilterChange(key, value string) {
	c.mu.Lock()
	c.state.PendingFilters[key] = value
	v, snap := c.publishLocked()
	c.mu.Unlock()
	c.notify(v, snap)
}

// ApplyFilters makes the pending filters the applied ones and fetches page 1
func (c *Controller[T]) ApplyFilters(ctx context.Context) {
	c.mutateAndFetch(ctx, func(s *State[T]) bool {
		s.Filters = s.PendingFilters.Clone()
		s.CurrentPage = 1
		return true
	})
}

// ClearFilters restores pending and applied filters to the defaults and fetches page 1
func (c *Controller[T]) ClearFilters(ctx context.Context) {
	c.mutateAndFetch(ctx, func(s *State[T]) bool {
		s.Filters = c.opts.DefaultFilters.Clone()
		s.PendingFilters = c.opts.DefaultFilters.Clone()
		s.CurrentPage = 1
		return true
	})
}

// OnPageChange fetches page. Pages below 1 are ignored.
func (c *Controller[T]) OnPageChange(ctx context.Context, page int) {
	c.mutateAndFetch(ctx, func(s *State[T]) bool {
		if page < 1 {
			return false
		}
		s.CurrentPage = page
		return true
	})
}

// OnItemsPerPageChange changes the page size and fetches page 1. Sizes below 1 are ignored.
func (c *Controller[T]) OnItemsPerPageChange(ctx context.Context, perPage int) {
	c.mutateAndFetch(ctx, func(s *State[T]) bool {
		if perPage < 1 {
			return false
		}
		s.ItemsPerPage = perPage
		s.CurrentPage = 1
		return true
	})
}

// OnSort sorts by column. The same column toggles the direction,
// a different column starts ascending.
func (c *Controller[T]) OnSort(ctx context.Context, column string) {
	c.mutateAndFetch(ctx, func(s *State[T]) bool {
		if column == "" {
			return false
		}
		if s.Sort != nil && s.Sort.Column == column {
			s.Sort = &shared.Sort{Column: column, Direction: s.Sort.Direction.Toggle()}
		} else {
			s.Sort = &shared.Sort{Column: column, Direction: shared.SortAsc}
		}
		return true
	})
}

// mutateAndFetch applies mutate (nil means no change) and fetches with the
// resulting query. A mutate returning false cancels the operation.
func (c *Controller[T]) mutateAndFetch(ctx context.Context, mutate func(*State[T]) bool) {
	c.mu.Lock()
	if mutate != nil && !mutate(&c.state) {
		c.mu.Unlock()
		return
	}

	c.seq++
	id := c.seq
	q := c.queryLocked()

	if c.opts.StalePolicy == StaleLatestRequest && c.cancelPrev != nil {
		c.cancelPrev()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelPrev = cancel

	c.inFlight++
	c.state.IsLoading = true
	c.state.Error = ""
	v, snap := c.publishLocked()
	c.mu.Unlock()
	c.notify(v, snap)

	ctxSpan, span := telemetry.StartSpan(fetchCtx, "list."+c.opts.Name+".fetch",
		attribute.Int("page", q.Page),
		attribute.Int("per_page", q.PerPage),
	)
	page, err := c.fetch(ctxSpan, q)
	telemetry.Finish(span, err)

	c.commit(id, q, page, err)
}

func (c *Controller[T]) commit(id uint64, q shared.ListQuery, page *shared.Page[T], err error) {
	c.mu.Lock()
	c.inFlight--
	c.state.IsLoading = c.inFlight > 0

	outcome := telemetry.OutcomeSuccess
	switch {
	case c.opts.StalePolicy == StaleLatestRequest && id != c.seq:
		outcome = telemetry.OutcomeDiscarded
		c.log.Debug("discarding stale response", zap.Uint64("seq", id), zap.Uint64("latest", c.seq))

	case err != nil:
		outcome = telemetry.OutcomeError
		c.err = err
		c.state.Error = apiclient.Message(err, c.opts.ErrorMessage)
		c.log.Debug("fetch failed", zap.Int("page", q.Page), zap.Error(err))

	default:
		c.err = nil
		c.state.Error = ""
		if page == nil {
			page = &shared.Page[T]{}
		}
		c.state.Data = page.Data
		if c.state.Data == nil {
			c.state.Data = []T{}
		}
		// the server's numbers are authoritative; a missing pagina keeps the requested page
		if page.Pagina > 0 {
			c.state.CurrentPage = page.Pagina
		} else {
			c.state.CurrentPage = q.Page
		}
		c.state.TotalPages = page.TotalPaginas
		c.state.TotalItems = page.Total()
	}
	v, snap := c.publishLocked()
	c.mu.Unlock()

	c.opts.Metrics.ObserveListFetch(c.opts.Name, outcome)
	c.notify(v, snap)
}

func (c *Controller[T]) queryLocked() shared.ListQuery {
	return shared.ListQuery{
		Page:    c.state.CurrentPage,
		PerPage: c.state.ItemsPerPage,
		Filters: c.state.Filters.Clone(),
		Sort:    cloneSort(c.state.Sort),
	}
}

func (c *Controller[T]) snapshot() State[T] {
	s := c.state
	s.Data = append([]T(nil), c.state.Data...)
	if s.Data == nil {
		s.Data = []T{}
	}
	s.Filters = c.state.Filters.Clone()
	s.PendingFilters = c.state.PendingFilters.Clone()
	s.Sort = cloneSort(c.state.Sort)
	return s
}

// publishLocked stamps a snapshot of the current state for notify
func (c *Controller[T]) publishLocked() (uint64, State[T]) {
	c.version++
	return c.version, c.snapshot()
}

// notify hands s to the subscribers unless a newer snapshot was already
// accepted. Only one goroutine delivers at a time; snapshots queued while it
// runs, including those from subscribers calling back into the controller,
// are delivered by that goroutine before it returns.
func (c *Controller[T]) notify(version uint64, s State[T]) {
	c.notifyMu.Lock()
	if version <= c.queued {
		c.notifyMu.Unlock()
		return
	}
	c.queued = version
	c.pending = &s
	if c.delivering {
		c.notifyMu.Unlock()
		return
	}
	c.delivering = true
	for c.pending != nil {
		next := *c.pending
		c.pending = nil
		c.notifyMu.Unlock()
		c.deliver(next)
		c.notifyMu.Lock()
	}
	c.delivering = false
	c.notifyMu.Unlock()
}

func (c *Controller[T]) deliver(s State[T]) {
	c.subMu.Lock()
	ids := make([]int, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State[T]), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subscribers[id])
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func cloneSort(s *shared.Sort) *shared.Sort {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
