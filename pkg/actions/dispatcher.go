// Package actions executes the side effect of one action node and reports its outcome.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/providers"
	"github.com/dukex/fanflow/pkg/template"
	"github.com/sethvargo/go-retry"
)

const (
	defaultMaxRetries = 2
	defaultRetryBase  = 200 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// Result is everything the runner needs from one dispatch.
type Result struct {
	Outcome models.Outcome
	// ContextAdditions are merged into the run context. Each handler writes only keys
	// owned by its node.
	ContextAdditions map[string]any
	// Suspend parks the branch for Delay.
	Suspend bool
	Delay   time.Duration
	// Halt is set when the action failed and its failure stops the whole run.
	Halt bool
}

// Request is the input of a handler. Config has already been resolved against Context.
type Request struct {
	Node    *models.Node
	Config  map[string]string
	Context map[string]any
	OwnerID string
	Now     time.Time
}

// Handler performs one action subtype. Handlers never panic on provider errors; they
// return a failed outcome instead.
type Handler func(ctx context.Context, req Request) Result

type registration struct {
	handler Handler
	fatal   bool
}

// Dispatcher maps action subtypes to their handlers.
type Dispatcher struct {
	logger     *slog.Logger
	providers  providers.Set
	handlers   map[string]registration
	maxRetries uint64
	retryBase  time.Duration
	now        func() time.Time
}

type Option func(*Dispatcher)

// WithRetry sets how many times a failed provider call is retried and the base delay
// of the exponential backoff between attempts.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxRetries = maxRetries
		d.retryBase = base
	}
}

// WithMaxRetries sets how many times a failed provider call is retried, keeping the
// default backoff.
func WithMaxRetries(maxRetries uint64) Option {
	return func(d *Dispatcher) {
		d.maxRetries = maxRetries
	}
}

// WithClock replaces time.Now, used to compute wait deadlines.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a dispatcher with every built-in action registered.
func NewDispatcher(set providers.Set, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:     logger.With("module", "action_dispatcher"),
		providers:  set,
		handlers:   make(map[string]registration),
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	d.registerDefaults()

	return d
}

// Register sets the handler of a subtype. A fatal action halts the run when it fails.
func (d *Dispatcher) Register(subtype string, handler Handler, fatal bool) {
	d.handlers[subtype] = registration{handler: handler, fatal: fatal}
}

// Dispatch resolves the node config against runContext and runs the subtype handler.
func (d *Dispatcher) Dispatch(ctx context.Context, node *models.Node, runContext map[string]any) Result {
	logger := d.logger.With("node_id", node.ID, "subtype", node.Subtype)

	registered, ok := d.handlers[node.Subtype]
	if !ok {
		logger.WarnContext(ctx, "Unsupported action")

		return Result{Outcome: models.Outcome{"success": false, "error": "unsupported action: " + node.Subtype}}
	}

	req := Request{
		Node:    node,
		Config:  template.ResolveConfig(node.Config, runContext),
		Context: runContext,
		OwnerID: ownerOf(runContext),
		Now:     d.now(),
	}

	result := registered.handler(ctx, req)

	if result.Outcome.Failed() {
		result.Halt = haltOnError(node, registered.fatal)

		logger.WarnContext(ctx, "Action failed", "error", result.Outcome.Err(), "halt", result.Halt)
	} else {
		logger.DebugContext(ctx, "Action dispatched", "outcome", result.Outcome)
	}

	return result
}

// call runs fn with retries. ErrNotConfigured is never retried.
func (d *Dispatcher) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.maxRetries == 0 {
		return fn(ctx)
	}

	backoff := retry.WithMaxRetries(d.maxRetries, retry.WithCappedDuration(maxRetryDelay, retry.NewExponential(d.retryBase)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, providers.ErrNotConfigured) {
			return err
		}

		return retry.RetryableError(err)
	})
}

// haltOnError lets the node config override the default fatality of its subtype.
func haltOnError(node *models.Node, fatal bool) bool {
	override, err := strconv.ParseBool(node.ConfigValue("haltOnError"))
	if err != nil {
		return fatal
	}

	return override
}

func ownerOf(runContext map[string]any) string {
	value, ok := template.Lookup("event.occurredFor", runContext)
	if !ok || value == nil {
		return ""
	}

	return template.String(value)
}

func notConfigured(name string) error {
	return fmt.Errorf("%s: %w", name, providers.ErrNotConfigured)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	list := make([]string, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			list = append(list, part)
		}
	}

	return list
}
