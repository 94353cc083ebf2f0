package datum

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/bridge"
	"github.com/aretw0/datum/pkg/command"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/gateway"
	"github.com/aretw0/datum/pkg/observability"
	"github.com/aretw0/datum/pkg/ports"
	"github.com/aretw0/datum/pkg/script"
)

// Version is the library version. Overridable at build time with
// -ldflags "-X github.com/aretw0/datum.Version=...".
var Version = "0.1.0"

// Engine is the high-level entry point. It wires the command framework,
// the isolation gateway, the script surface and the bridge dispatcher
// over one host document.
type Engine struct {
	doc        ports.HostDocument
	store      event.Store
	framework  *command.Framework
	gateway    *gateway.Gateway
	registry   *script.Registry
	loader     *script.HotLoader
	scripts    *script.Bridge
	dispatcher *bridge.Dispatcher

	logger        *slog.Logger
	metrics       *observability.Metrics
	session       command.Session
	scriptsDir    string
	registryStore script.Store
	specs         []command.Spec

	sweepInterval time.Duration
	sweepMaxAge   time.Duration
	sweepStop     chan struct{}
	sweepDone     chan struct{}
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a structured logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEventStore overrides the default in-memory journal, e.g. with the
// SQLite adapter.
func WithEventStore(store event.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithRegistryStore persists script metadata, e.g. in Redis.
func WithRegistryStore(store script.Store) Option {
	return func(e *Engine) {
		e.registryStore = store
	}
}

// WithScriptsDir sets where hot-loaded scripts materialize.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSession sets the identity stamped on journal events.
func WithSession(sess command.Session) Option {
	return func(e *Engine) {
		e.session = sess
	}
}

// WithScriptSweep starts a background sweep that evicts hot-loaded
// scripts and registered entries not used within maxAge, checking every
// interval. Disabled unless both values are positive.
func WithScriptSweep(interval, maxAge time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = interval
		e.sweepMaxAge = maxAge
	}
}

// WithCommands registers additional command specs beyond the built-ins.
func WithCommands(specs ...command.Spec) Option {
	return func(e *Engine) {
		e.specs = append(e.specs, specs...)
	}
}

// New wires an Engine over the given host document. The built-in
// commands (create_wall, set_parameter, delete_element) are registered
// along with any specs passed via WithCommands.
func New(doc ports.HostDocument, opts ...Option) (*Engine, error) {
	if doc == nil {
		return nil, fmt.Errorf("host document is required")
	}

	e := &Engine{
		doc:     doc,
		logger:  logging.NewNop(),
		session: command.Session{SessionID: "default", UserID: "agent"},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = event.NewMemoryStore()
	}

	e.framework = command.New(e.store, command.WithLogger(e.logger))
	e.framework.Register(command.NewCreateWall())
	e.framework.Register(command.NewSetParameter())
	e.framework.Register(command.NewDeleteElement())
	for _, spec := range e.specs {
		e.framework.Register(spec)
	}

	e.gateway = gateway.New(doc, gateway.WithLogger(e.logger))
	e.loader = script.NewHotLoader(e.gateway, e.scriptsDir, script.WithLoaderLogger(e.logger))

	regOpts := []script.RegistryOption{script.WithRegistryLogger(e.logger)}
	if e.registryStore != nil {
		regOpts = append(regOpts, script.WithRegistryStore(e.registryStore))
	}
	e.registry = script.NewRegistry(regOpts...)

	e.scripts = script.NewBridge(e.registry, e.loader, e.logger)
	e.dispatcher = bridge.NewDispatcher(doc, e.framework, e.scripts, e.session,
		bridge.WithDispatcherLogger(e.logger),
		bridge.WithMetrics(e.metrics))

	if e.sweepInterval > 0 && e.sweepMaxAge > 0 {
		e.sweepStop = make(chan struct{})
		e.sweepDone = make(chan struct{})
		go e.sweepLoop()
	}

	return e, nil
}

// sweepLoop periodically evicts stale hot-loaded scripts and registry
// entries until Close.
func (e *Engine) sweepLoop() {
	defer close(e.sweepDone)
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.sweepStop:
			return
		case <-ticker.C:
			swept := e.loader.Sweep(e.sweepMaxAge)
			cleaned := e.registry.Cleanup(e.sweepMaxAge)
			if len(swept) > 0 || len(cleaned) > 0 {
				e.logger.Info("script sweep",
					"hotloaded_evicted", len(swept),
					"registry_evicted", len(cleaned))
			}
		}
	}
}

// Close releases the dispatcher goroutine and stops the script sweep.
func (e *Engine) Close() {
	if e.sweepStop != nil {
		close(e.sweepStop)
		<-e.sweepDone
	}
	e.dispatcher.Close()
}

// Dispatch routes one bridge request through the engine.
func (e *Engine) Dispatch(ctx context.Context, req bridge.Request) bridge.Response {
	return e.dispatcher.Dispatch(ctx, req)
}

// Validate runs the three validation phases without executing.
func (e *Engine) Validate(ctx context.Context, cmd domain.Command) domain.ValidationResult {
	return e.framework.Validate(ctx, e.doc, cmd)
}

// Preview reports what a command would do without mutating the document.
func (e *Engine) Preview(ctx context.Context, cmd domain.Command) domain.CommandResult {
	return e.framework.Preview(ctx, e.doc, cmd)
}

// Execute validates and executes a command transactionally.
func (e *Engine) Execute(ctx context.Context, cmd domain.Command) domain.CommandResult {
	return e.framework.Execute(ctx, e.doc, cmd, e.session)
}

// Undo reverses a previously committed command by replaying its journal
// events inversely.
func (e *Engine) Undo(ctx context.Context, commandID string) error {
	return e.framework.Undo(ctx, e.doc, commandID, e.session)
}

// InvokeScript routes a script invocation: registered scripts run from
// the registry, unknown names with source hot-load into the sandbox.
func (e *Engine) InvokeScript(ctx context.Context, req script.InvokeRequest) (script.InvokeOutcome, error) {
	return e.scripts.Invoke(ctx, req)
}

// LoadScriptManifest seeds the registry with metadata from a YAML or
// JSON manifest file.
func (e *Engine) LoadScriptManifest(path string) error {
	metas, err := script.LoadManifest(path)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		content := meta.Path
		name := meta.Name
		e.registry.Register(meta, func(ctx context.Context, params map[string]any) (*domain.CommandResult, error) {
			record, err := e.loader.LoadAndExecute(ctx, name, content, nil)
			if err != nil {
				return nil, err
			}
			return &domain.CommandResult{
				Success: true,
				Message: fmt.Sprintf("script %q executed", name),
				Data:    map[string]any{"execution_time_ms": record.LastExecutionTimeMs},
			}, nil
		})
	}
	return nil
}

// LoadRegistry pulls persisted script metadata from the registry store.
func (e *Engine) LoadRegistry(ctx context.Context) error {
	return e.registry.Load(ctx)
}

// Dispatcher exposes the bridge dispatcher for transport adapters.
func (e *Engine) Dispatcher() *bridge.Dispatcher {
	return e.dispatcher
}

// Framework exposes the command framework.
func (e *Engine) Framework() *command.Framework {
	return e.framework
}

// Registry exposes the script registry.
func (e *Engine) Registry() *script.Registry {
	return e.registry
}

// HotLoader exposes the script hot-loader.
func (e *Engine) HotLoader() *script.HotLoader {
	return e.loader
}

// Gateway exposes the isolation gateway.
func (e *Engine) Gateway() *gateway.Gateway {
	return e.gateway
}
