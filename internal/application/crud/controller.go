// Package crud manages the load/create/update/delete lifecycle of a single
// entity through an injected adapter.
package crud

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/erp/appinv/internal/domain/shared"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
	"github.com/erp/appinv/internal/infrastructure/logger"
	"github.com/erp/appinv/internal/infrastructure/telemetry"
	"github.com/erp/appinv/internal/infrastructure/validation"
)

// ErrBusy is reported by Err when a mutation was rejected because another
// one is still in flight
var ErrBusy = errors.New("another operation is in progress")

// Default user-facing messages
const (
	DefaultErrorMessage = "The operation could not be completed"
	InvalidFormMessage  = "Please correct the highlighted fields"
	operationLoad       = "load"
	operationCreate     = "create"
	operationUpdate     = "update"
	operationDelete     = "delete"
)

// Adapter performs the API calls of one entity
type Adapter[T any] interface {
	Get(ctx context.Context, id shared.ID) (*T, error)
	Create(ctx context.Context, data *T) (*T, error)
	Update(ctx context.Context, id shared.ID, data *T) (*T, error)
	Delete(ctx context.Context, id shared.ID) error
}

// AdapterFuncs builds an Adapter from functions. Nil functions fail with an error.
type AdapterFuncs[T any] struct {
	GetFn    func(ctx context.Context, id shared.ID) (*T, error)
	CreateFn func(ctx context.Context, data *T) (*T, error)
	UpdateFn func(ctx context.Context, id shared.ID, data *T) (*T, error)
	DeleteFn func(ctx context.Context, id shared.ID) error
}

var errUnsupported = errors.New("operation not supported")

func (a AdapterFuncs[T]) Get(ctx context.Context, id shared.ID) (*T, error) {
	if a.GetFn == nil {
		return nil, errUnsupported
	}
	return a.GetFn(ctx, id)
}

func (a AdapterFuncs[T]) Create(ctx context.Context, data *T) (*T, error) {
	if a.CreateFn == nil {
		return nil, errUnsupported
	}
	return a.CreateFn(ctx, data)
}

func (a AdapterFuncs[T]) Update(ctx context.Context, id shared.ID, data *T) (*T, error) {
	if a.UpdateFn == nil {
		return nil, errUnsupported
	}
	return a.UpdateFn(ctx, id, data)
}

func (a AdapterFuncs[T]) Delete(ctx context.Context, id shared.ID) error {
	if a.DeleteFn == nil {
		return errUnsupported
	}
	return a.DeleteFn(ctx, id)
}

// Validator checks a form before it is submitted
type Validator interface {
	Struct(s any) error
}

// Options configures a Controller
type Options struct {
	Name         string // entity name in logs and metrics
	Validator    Validator
	ErrorMessage string
	// AllowConcurrent lets mutations overlap instead of rejecting the second one with ErrBusy
	AllowConcurrent bool
	Logger          *zap.Logger
	Metrics         *telemetry.ClientMetrics
}

// State is a snapshot of the controller
type State[T any] struct {
	Item        *T
	IsLoading   bool
	Error       string
	FieldErrors map[string]string
}

// Controller holds the current item of a detail or form screen.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Controller[T any] struct {
	adapter Adapter[T]
	opts    Options
	log     *zap.Logger

	mu        sync.Mutex
	state     State[T]
	err       error
	inFlight  int
	mutating  bool
	loadSeq   uint64
	onChanges []func(State[T])
}

// New creates a controller over adapter
func New[T any](adapter Adapter[T], opts Options) *Controller[T] {
	if opts.ErrorMessage == "" {
		opts.ErrorMessage = DefaultErrorMessage
	}
	if opts.Name == "" {
		opts.Name = "item"
	}
	return &Controller[T]{
		adapter: adapter,
		opts:    opts,
		log:     logger.OrNop(opts.Logger).With(zap.String("entity", opts.Name)),
	}
}

// State returns a snapshot of the current state
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Err returns the error of the last operation, nil after a success
func (c *Controller[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Busy reports whether a create, update or delete is in flight
func (c *Controller[T]) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutating
}

// OnChange registers fn to receive a snapshot after every state change
func (c *Controller[T]) OnChange(fn func(State[T])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChanges = append(c.onChanges, fn)
}

// Reset clears item, error and field errors
func (c *Controller[T]) Reset() {
	c.mu.Lock()
	c.state.Item = nil
	c.state.Error = ""
	c.state.FieldErrors = nil
	c.err = nil
	snap, fns := c.snapshot(), c.listeners()
	c.mu.Unlock()
	notify(fns, snap)
}

// LoadItem fetches id and makes it the current item. On failure the item is
// cleared and the error set. Only the most recent LoadItem commits.
func (c *Controller[T]) LoadItem(ctx context.Context, id shared.ID) bool {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	c.begin(false)
	item, err := c.adapter.Get(ctx, id)

	c.mu.Lock()
	stale := seq != c.loadSeq
	if !stale {
		if err != nil {
			c.state.Item = nil
		} else {
			c.state.Item = item
		}
	}
	c.mu.Unlock()

	if stale {
		c.end(false, nil, true)
		c.observe(operationLoad, telemetry.OutcomeDiscarded)
		return false
	}
	c.end(false, err, false)
	c.observe(operationLoad, outcomeOf(err))
	return err == nil
}

// CreateItem validates data and creates it. It returns the created entity,
// or nil when validation or the call failed.
func (c *Controller[T]) CreateItem(ctx context.Context, data *T) *T {
	if !c.validate(operationCreate, data) {
		return nil
	}
	if !c.begin(true) {
		c.observe(operationCreate, telemetry.OutcomeRejected)
		return nil
	}
	created, err := c.adapter.Create(ctx, data)
	if err == nil {
		c.setItem(created)
	}
	c.end(true, err, false)
	c.observe(operationCreate, outcomeOf(err))
	if err != nil {
		return nil
	}
	return created
}

// UpdateItem validates data and updates id. It returns the updated entity or nil.
func (c *Controller[T]) UpdateItem(ctx context.Context, id shared.ID, data *T) *T {
	if !c.validate(operationUpdate, data) {
		return nil
	}
	if !c.begin(true) {
		c.observe(operationUpdate, telemetry.OutcomeRejected)
		return nil
	}
	updated, err := c.adapter.Update(ctx, id, data)
	if err == nil {
		c.setItem(updated)
	}
	c.end(true, err, false)
	c.observe(operationUpdate, outcomeOf(err))
	if err != nil {
		return nil
	}
	return updated
}

// DeleteItem deletes id and reports success. The current item is left in
// place; call Reset to drop it.
func (c *Controller[T]) DeleteItem(ctx context.Context, id shared.ID) bool {
	if !c.begin(true) {
		c.observe(operationDelete, telemetry.OutcomeRejected)
		return false
	}
	err := c.adapter.Delete(ctx, id)
	c.end(true, err, false)
	c.observe(operationDelete, outcomeOf(err))
	return err == nil
}

// validate runs the form checks. Field errors block the call and never reach the network.
func (c *Controller[T]) validate(op string, data *T) bool {
	if data == nil {
		c.fail(errors.New("nothing to submit"), nil)
		return false
	}
	if c.opts.Validator == nil {
		return true
	}
	err := c.opts.Validator.Struct(data)
	if err == nil {
		return true
	}

	var fields validation.Errors
	if errors.As(err, &fields) {
		c.fail(err, fields)
	} else {
		c.fail(err, nil)
	}
	c.log.Debug("form rejected", zap.String("operation", op), zap.Error(err))
	c.observe(op, telemetry.OutcomeRejected)
	return false
}

// begin marks an operation as started. A mutation is refused while another
// one is in flight unless AllowConcurrent is set.
func (c *Controller[T]) begin(mutation bool) bool {
	c.mu.Lock()
	if mutation && c.mutating && !c.opts.AllowConcurrent {
		c.err = ErrBusy
		c.mu.Unlock()
		c.log.Debug("operation rejected, another one is in flight")
		return false
	}
	if mutation {
		c.mutating = true
	}
	c.inFlight++
	c.state.IsLoading = true
	c.state.Error = ""
	c.state.FieldErrors = nil
	snap, fns := c.snapshot(), c.listeners()
	c.mu.Unlock()
	notify(fns, snap)
	return true
}

func (c *Controller[T]) end(mutation bool, err error, discarded bool) {
	c.mu.Lock()
	c.inFlight--
	c.state.IsLoading = c.inFlight > 0
	if mutation {
		c.mutating = false
	}
	if !discarded {
		c.err = err
		if err != nil {
			c.state.Error = apiclient.Message(err, c.opts.ErrorMessage)
			var apiErr *apiclient.APIError
			if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
				c.state.FieldErrors = copyFields(apiErr.Fields)
			}
		}
	}
	snap, fns := c.snapshot(), c.listeners()
	c.mu.Unlock()
	notify(fns, snap)
}

func (c *Controller[T]) fail(err error, fields map[string]string) {
	c.mu.Lock()
	c.err = err
	if fields != nil {
		c.state.Error = InvalidFormMessage
		c.state.FieldErrors = copyFields(fields)
	} else {
		c.state.Error = apiclient.Message(err, c.opts.ErrorMessage)
		c.state.FieldErrors = nil
	}
	snap, fns := c.snapshot(), c.listeners()
	c.mu.Unlock()
	notify(fns, snap)
}

func (c *Controller[T]) setItem(item *T) {
	if item == nil {
		return
	}
	c.mu.Lock()
	c.state.Item = item
	c.mu.Unlock()
}

func (c *Controller[T]) observe(op, outcome string) {
	c.opts.Metrics.ObserveItemOperation(c.opts.Name, op, outcome)
}

func (c *Controller[T]) snapshot() State[T] {
	s := c.state
	s.FieldErrors = copyFields(c.state.FieldErrors)
	return s
}

func (c *Controller[T]) listeners() []func(State[T]) {
	return append([]func(State[T]){}, c.onChanges...)
}

func notify[T any](fns []func(State[T]), s State[T]) {
	for _, fn := range fns {
		fn(s)
	}
}

func outcomeOf(err error) string {
	if err != nil {
		return telemetry.OutcomeError
	}
	return telemetry.OutcomeSuccess
}

func copyFields(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
