// Package script manages the script surface of the engine: a registry
// of known scripts, a hot-loader that runs generated Lua inside the
// capability sandbox, and the graduation pipeline that promotes proven
// hot-loaded scripts into registered ones.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/domain"
)

// Runner executes a registered script against the given parameters.
type Runner func(ctx context.Context, params map[string]any) (*domain.CommandResult, error)

// Metadata describes a registered script.
type Metadata struct {
	Name        string    `yaml:"name" json:"name"`
	Path        string    `yaml:"path" json:"path"`
	Description string    `yaml:"description" json:"description"`
	Parameters  []string  `yaml:"parameters" json:"parameters"`
	UsageCount  int       `yaml:"usage_count" json:"usage_count"`
	LastUsed    time.Time `yaml:"last_used" json:"last_used"`
}

// Store persists registry metadata across sessions. Implementations
// live under pkg/adapters.
type Store interface {
	SaveMetadata(ctx context.Context, meta Metadata) error
	LoadAll(ctx context.Context) ([]Metadata, error)
}

type entry struct {
	meta   Metadata
	runner Runner
}

// Registry holds the registered scripts.
type Registry struct {
	mu      sync.RWMutex
	scripts map[string]*entry
	store   Store
	logger  *slog.Logger
	clock   func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryStore attaches a persistence backend. Usage counters are
// written through to it on every invocation.
func WithRegistryStore(store Store) RegistryOption {
	return func(r *Registry) {
		r.store = store
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func withRegistryClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		scripts: make(map[string]*entry),
		logger:  logging.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load pulls persisted metadata from the store. Runners are not
// persisted; loaded entries stay metadata-only until a runner is
// registered under the same name.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	metas, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, meta := range metas {
		if existing, ok := r.scripts[meta.Name]; ok {
			existing.meta = meta
			continue
		}
		r.scripts[meta.Name] = &entry{meta: meta}
	}
	return nil
}

// Register adds a script. An existing script with the same name is
// overwritten, keeping its usage history.
func (r *Registry) Register(meta Metadata, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.scripts[meta.Name]; ok {
		meta.UsageCount = existing.meta.UsageCount
		if meta.LastUsed.IsZero() {
			meta.LastUsed = existing.meta.LastUsed
		}
	}
	r.scripts[meta.Name] = &entry{meta: meta, runner: runner}
	r.logger.Debug("script registered", "name", meta.Name)
}

// Registered reports whether a runnable script with this name exists.
func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.scripts[name]
	return ok && e.runner != nil
}

// Metadata returns a script's metadata.
func (r *Registry) Metadata(name string) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.scripts[name]
	if !ok {
		return Metadata{}, fmt.Errorf("script %q: %w", name, domain.ErrScriptNotFound)
	}
	return e.meta, nil
}

// List returns all metadata, sorted by name.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.scripts))
	for _, e := range r.scripts {
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs a registered script. Usage statistics are updated, and
// persisted, only when the runner succeeds; failed invocations leave the
// metadata untouched.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (*domain.CommandResult, error) {
	r.mu.RLock()
	e, ok := r.scripts[name]
	var runner Runner
	if ok {
		runner = e.runner
	}
	r.mu.RUnlock()
	if runner == nil {
		return nil, fmt.Errorf("script %q: %w", name, domain.ErrScriptNotFound)
	}

	start := r.clock()
	result, err := runner(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("script %q: %w", name, err)
	}
	if result != nil && result.ExecutionTime == 0 {
		result.ExecutionTime = r.clock().Sub(start)
	}

	r.mu.Lock()
	var meta Metadata
	if e, ok := r.scripts[name]; ok {
		e.meta.UsageCount++
		e.meta.LastUsed = r.clock()
		meta = e.meta
	}
	r.mu.Unlock()

	if r.store != nil && meta.Name != "" {
		if err := r.store.SaveMetadata(ctx, meta); err != nil {
			r.logger.Warn("persist script metadata failed", "name", name, "error", err)
		}
	}

	r.logger.Info("script invoked", "name", name, "usage_count", meta.UsageCount)
	return result, nil
}

// Remove deletes a script from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scripts, name)
}

// Cleanup removes scripts whose last use is older than maxAge, returning
// the removed names. Scripts that were never invoked are kept.
func (r *Registry) Cleanup(maxAge time.Duration) []string {
	cutoff := r.clock().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, e := range r.scripts {
		if e.meta.LastUsed.IsZero() || !e.meta.LastUsed.Before(cutoff) {
			continue
		}
		delete(r.scripts, name)
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		sort.Strings(removed)
		r.logger.Info("registry cleanup", "removed", len(removed))
	}
	return removed
}

// manifestFile is the on-disk shape of scripts.yaml.
type manifestFile struct {
	Scripts []Metadata `yaml:"scripts" json:"scripts"`
}

// LoadManifest reads a script manifest (YAML or JSON). A missing file
// is not an error; it means no scripts are configured.
func LoadManifest(path string) ([]Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read script manifest: %w", err)
	}

	var file manifestFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse script manifest: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse script manifest: %w", err)
		}
	}

	out := file.Scripts[:0]
	for _, meta := range file.Scripts {
		if meta.Name == "" {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}
