// Package app wires the stores, services and polling loops into a runnable
// process.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	glog "github.com/goliatone/go-logger/glog"
	delivery "github.com/goliatone/go-webhook-delivery"
	"github.com/goliatone/go-webhook-delivery/adapters/gologger"
	"github.com/goliatone/go-webhook-delivery/core"
	"github.com/goliatone/go-webhook-delivery/deadletter"
	"github.com/goliatone/go-webhook-delivery/ingest"
	"github.com/goliatone/go-webhook-delivery/leasecleaner"
	"github.com/goliatone/go-webhook-delivery/router"
	"github.com/goliatone/go-webhook-delivery/saga"
	sqlstore "github.com/goliatone/go-webhook-delivery/store/sql"
	"github.com/goliatone/go-webhook-delivery/subscriptions"
	"github.com/goliatone/go-webhook-delivery/transport"
	"github.com/goliatone/go-webhook-delivery/worker"
	"golang.org/x/sync/errgroup"
)

type Role string

const (
	RoleRouter       Role = core.ComponentRouter
	RoleOrchestrator Role = core.ComponentOrchestrator
	RoleWorker       Role = core.ComponentWorker
	RoleLeaseCleaner Role = core.ComponentLeaseCleaner
)

func AllRoles() []Role {
	return []Role{RoleRouter, RoleOrchestrator, RoleWorker, RoleLeaseCleaner}
}

// ParseRoles reads a comma separated role list. Empty input or "all" selects
// every role.
func ParseRoles(raw string) ([]Role, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return AllRoles(), nil
	}
	out := []Role{}
	for _, part := range strings.Split(raw, ",") {
		role := Role(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(part)), "-", "_"))
		if role == "" {
			continue
		}
		if !slices.Contains(AllRoles(), role) {
			return nil, core.NewValidationError("roles", fmt.Sprintf("unknown role %q", part))
		}
		if !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	if len(out) == 0 {
		return nil, core.NewValidationError("roles", "at least one role is required")
	}
	return out, nil
}

type options struct {
	logger         glog.Logger
	loggerProvider glog.LoggerProvider
	metrics        core.MetricsRecorder
	hooks          []core.TickHook
	deliverer      core.Deliverer
	now            func() time.Time
}

type Option func(*options)

func WithLogger(logger glog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *options) { o.loggerProvider = provider }
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithTickHooks observes every loop tick, e.g. through gojob.NewTickHookAdapter.
func WithTickHooks(hooks ...core.TickHook) Option {
	return func(o *options) { o.hooks = append(o.hooks, hooks...) }
}

// WithDeliverer replaces the HTTP client used by workers.
func WithDeliverer(deliverer core.Deliverer) Option {
	return func(o *options) { o.deliverer = deliverer }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Runtime owns every component built from one configuration.
type Runtime struct {
	config  core.Config
	options options
	client  *persistence.Client
	owned   bool
	factory *sqlstore.RepositoryFactory

	events        *ingest.Service
	subscriptions *subscriptions.Service
	deadLetters   *deadletter.Manager
	router        *router.Router
	orchestrator  *saga.Orchestrator
	workers       []*worker.Worker
	cleaner       *leasecleaner.Cleaner
	facade        *delivery.Facade
}

// New builds a runtime on top of an open persistence client. The caller
// keeps ownership of client unless the runtime came from Setup.
func New(cfg core.Config, client *persistence.Client, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("app: persistence client is required")
	}
	rt := &Runtime{config: cfg, client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(&rt.options)
		}
	}

	factoryOpts := []sqlstore.FactoryOption{}
	if ttl := cfg.Router.SubscriptionCacheTTL(); ttl > 0 {
		cacheService, err := sqlstore.NewSubscriptionCacheService(ttl)
		if err != nil {
			return nil, fmt.Errorf("app: subscription cache: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithSubscriptionCache(cacheService))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		return nil, err
	}
	rt.factory = factory

	if err := rt.build(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Setup opens the configured database, optionally migrates it and builds a
// runtime that closes the database on Close.
func Setup(ctx context.Context, cfg core.Config, migrate bool, opts ...Option) (*Runtime, error) {
	client, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := Migrate(ctx, client, cfg.Database.Driver); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	rt, err := New(cfg, client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	rt.owned = true
	return rt, nil
}

func (r *Runtime) build() error {
	cfg := r.config
	var err error

	if r.events, err = ingest.New(r.factory.EventStore(), r.observer("ingest"), ingest.WithClock(r.options.now)); err != nil {
		return err
	}
	if r.subscriptions, err = subscriptions.New(r.factory.SubscriptionStore(), r.observer("subscriptions"), subscriptions.WithClock(r.options.now)); err != nil {
		return err
	}
	if r.deadLetters, err = deadletter.New(
		r.factory.DeadLetterDeps(),
		deadletter.ConfigFrom(cfg.DeadLetters),
		r.observer("dead_letters"),
		deadletter.WithClock(r.options.now),
	); err != nil {
		return err
	}
	if r.router, err = router.New(
		r.factory.RouterDeps(),
		router.ConfigFrom(cfg.Router),
		r.observer(core.ComponentRouter),
		router.WithClock(r.options.now),
	); err != nil {
		return err
	}
	if r.orchestrator, err = saga.New(
		r.factory.OrchestratorDeps(r.deadLetters),
		saga.ConfigFrom(cfg.Orchestrator),
		r.observer(core.ComponentOrchestrator),
		saga.WithClock(r.options.now),
	); err != nil {
		return err
	}
	if r.cleaner, err = leasecleaner.New(
		r.factory.LeaseResetter(),
		r.observer(core.ComponentLeaseCleaner),
		leasecleaner.WithClock(r.options.now),
	); err != nil {
		return err
	}

	deliverer := r.options.deliverer
	if deliverer == nil {
		deliverer = transport.NewClientFromConfig(cfg.Worker)
	}
	for i := 0; i < max(cfg.Worker.Concurrency, 1); i++ {
		w, err := worker.New(
			r.factory.WorkerDeps(),
			deliverer,
			worker.ConfigFrom(cfg.Worker),
			r.observer(core.ComponentWorker),
			worker.WithClock(r.options.now),
		)
		if err != nil {
			return err
		}
		r.workers = append(r.workers, w)
	}

	r.facade, err = delivery.NewFacade(delivery.FacadeServices{
		Events:        r.events,
		Subscriptions: r.subscriptions,
		DeadLetters:   r.deadLetters,
		Sagas:         r.factory.SagaStore(),
	})
	return err
}

func (r *Runtime) observer(component string) core.Observer {
	return core.NewObserver(
		gologger.ComponentLogger(r.options.loggerProvider, r.options.logger, component),
		r.options.metrics,
	)
}

func (r *Runtime) Config() core.Config                   { return r.config }
func (r *Runtime) Factory() *sqlstore.RepositoryFactory  { return r.factory }
func (r *Runtime) Facade() *delivery.Facade              { return r.facade }
func (r *Runtime) Events() *ingest.Service               { return r.events }
func (r *Runtime) Subscriptions() *subscriptions.Service { return r.subscriptions }
func (r *Runtime) DeadLetters() *deadletter.Manager      { return r.deadLetters }
func (r *Runtime) Router() *router.Router                { return r.router }
func (r *Runtime) Orchestrator() *saga.Orchestrator      { return r.orchestrator }
func (r *Runtime) Workers() []*worker.Worker             { return slices.Clone(r.workers) }
func (r *Runtime) LeaseCleaner() *leasecleaner.Cleaner   { return r.cleaner }

// Loops returns one polling loop per selected role and one per worker.
func (r *Runtime) Loops(roles ...Role) ([]*core.Loop, error) {
	if len(roles) == 0 {
		roles = AllRoles()
	}
	cfg := r.config
	loops := []*core.Loop{}
	add := func(component, instance string, interval time.Duration, ticker core.Ticker) error {
		loop, err := core.NewLoop(core.LoopConfig{
			Component: component,
			Instance:  instance,
			Interval:  interval,
		}, ticker, r.observer(component), r.options.hooks...)
		if err != nil {
			return err
		}
		loops = append(loops, loop)
		return nil
	}

	for _, role := range roles {
		var err error
		switch role {
		case RoleRouter:
			err = add(core.ComponentRouter, cfg.ServiceName+"-router", cfg.Router.PollingInterval(), r.router)
		case RoleOrchestrator:
			err = add(core.ComponentOrchestrator, cfg.ServiceName+"-orchestrator", cfg.Orchestrator.PollingInterval(), r.orchestrator)
		case RoleWorker:
			for _, w := range r.workers {
				if err = add(core.ComponentWorker, w.ID(), cfg.Worker.PollingInterval(), w); err != nil {
					break
				}
			}
		case RoleLeaseCleaner:
			err = add(core.ComponentLeaseCleaner, cfg.ServiceName+"-lease-cleaner", cfg.LeaseCleaner.PollingInterval(), r.cleaner)
		default:
			err = fmt.Errorf("app: unknown role %q", role)
		}
		if err != nil {
			return nil, err
		}
	}
	return loops, nil
}

// Run drives the selected loops until ctx is cancelled. Each loop finishes
// its current tick before returning.
func (r *Runtime) Run(ctx context.Context, roles ...Role) error {
	loops, err := r.Loops(roles...)
	if err != nil {
		return err
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for _, loop := range loops {
		group.Go(func() error {
			return loop.Run(groupCtx)
		})
	}
	return group.Wait()
}

// Close releases the database when the runtime opened it.
func (r *Runtime) Close() error {
	if r == nil || r.client == nil || !r.owned {
		return nil
	}
	return r.client.Close()
}
