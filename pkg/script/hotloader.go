package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/go-lua"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/gateway"
)

// HotLoadedScript tracks a script that has been executed through the
// hot-loader, including the statistics the graduation pipeline scores.
type HotLoadedScript struct {
	Name     string    `json:"name"`
	Content  string    `json:"content"`
	LoadTime time.Time `json:"load_time"`

	// ExecutionCount counts successful runs only; failures accumulate
	// in FailureCount so one bad run never dilutes a proven script.
	ExecutionCount      int       `json:"execution_count"`
	FailureCount        int       `json:"failure_count"`
	LastExecuted        time.Time `json:"last_executed"`
	LastExecutionTimeMs float64   `json:"last_execution_time_ms"`
	Success             bool      `json:"success"`
}

// HotLoader runs Lua sources inside the capability sandbox. Each
// execution gets a fresh Lua state; the only shared state is the host
// document behind the gateway, and every run is wrapped in a gateway
// transaction group so a failing script leaves the document untouched.
type HotLoader struct {
	gw     *gateway.Gateway
	dir    string
	logger *slog.Logger
	clock  func() time.Time

	mu    sync.Mutex
	cache map[string]*HotLoadedScript
}

// LoaderOption configures a HotLoader.
type LoaderOption func(*HotLoader)

// WithLoaderLogger sets the hot-loader logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(h *HotLoader) {
		h.logger = logger
	}
}

func withLoaderClock(clock func() time.Time) LoaderOption {
	return func(h *HotLoader) {
		h.clock = clock
	}
}

// NewHotLoader creates a hot-loader that materializes script artifacts
// under dir. An empty dir disables materialization.
func NewHotLoader(gw *gateway.Gateway, dir string, opts ...LoaderOption) *HotLoader {
	h := &HotLoader{
		gw:     gw,
		dir:    dir,
		logger: logging.NewNop(),
		clock:  time.Now,
		cache:  make(map[string]*HotLoadedScript),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// resolveSource returns the Lua source text for the given input. A
// single-line input ending in .lua is treated as a file path, resolved
// against the loader's script directory when relative; anything else is
// raw source.
func (h *HotLoader) resolveSource(input string) (string, bool, error) {
	trimmed := strings.TrimSpace(input)
	if strings.HasSuffix(trimmed, ".lua") && !strings.ContainsAny(trimmed, "\n\r") {
		path := trimmed
		if !filepath.IsAbs(path) && h.dir != "" {
			path = filepath.Join(h.dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", true, fmt.Errorf("read script file: %w", err)
		}
		return string(data), true, nil
	}
	return input, false, nil
}

// LoadAndExecute runs a script atomically against the host document.
// The source is either raw Lua text or a .lua file path. When targets
// is non-empty, host.selected() inside the script resolves to those
// elements. On any error the document is rolled back to its state
// before the script started.
func (h *HotLoader) LoadAndExecute(ctx context.Context, name, source string, targets []domain.ElementID) (HotLoadedScript, error) {
	content, fromFile, err := h.resolveSource(source)
	if err != nil {
		return HotLoadedScript{}, err
	}

	start := h.clock()
	runErr := h.run(ctx, name, content, targets)
	elapsed := h.clock().Sub(start)

	h.mu.Lock()
	entry, ok := h.cache[name]
	if !ok {
		entry = &HotLoadedScript{Name: name, LoadTime: start}
		h.cache[name] = entry
	}
	entry.LastExecuted = start
	entry.LastExecutionTimeMs = float64(elapsed) / float64(time.Millisecond)
	entry.Success = runErr == nil
	if runErr == nil {
		// Only proven content is kept; a failed edit of an existing
		// script must not replace the version that worked.
		entry.Content = content
		entry.ExecutionCount++
	} else {
		if entry.Content == "" {
			entry.Content = content
		}
		entry.FailureCount++
	}
	snapshot := *entry
	h.mu.Unlock()

	if runErr != nil {
		h.logger.Warn("hot-loaded script failed", "name", name, "error", runErr)
		return snapshot, fmt.Errorf("script %q: %w", name, runErr)
	}

	if !fromFile {
		h.materialize(name, content)
	}
	h.logger.Info("hot-loaded script executed",
		"name", name,
		"duration_ms", snapshot.LastExecutionTimeMs,
		"executions", snapshot.ExecutionCount)
	return snapshot, nil
}

func (h *HotLoader) run(ctx context.Context, name, content string, targets []domain.ElementID) error {
	l := gateway.NewSandbox()
	h.gw.Bind(l, ctx, targets)

	if err := h.gw.BeginGroup(ctx, "script:"+name); err != nil {
		return err
	}
	if err := lua.DoString(l, content); err != nil {
		if rbErr := h.gw.RollbackGroup(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return h.gw.CommitGroup()
}

// materialize persists a successfully executed script under the script
// directory so it survives the session and can be inspected or promoted.
func (h *HotLoader) materialize(name, content string) {
	if h.dir == "" {
		return
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		h.logger.Warn("create script dir failed", "dir", h.dir, "error", err)
		return
	}
	path := filepath.Join(h.dir, name+".lua")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.logger.Warn("materialize script failed", "path", path, "error", err)
	}
}

// Script returns the cached record for a hot-loaded script.
func (h *HotLoader) Script(name string) (HotLoadedScript, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.cache[name]
	if !ok {
		return HotLoadedScript{}, false
	}
	return *entry, true
}

// Scripts returns all cached records.
func (h *HotLoader) Scripts() []HotLoadedScript {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HotLoadedScript, 0, len(h.cache))
	for _, entry := range h.cache {
		out = append(out, *entry)
	}
	return out
}

// Sweep evicts scripts not executed within maxAge and removes their
// materialized artifacts. It returns the evicted names.
func (h *HotLoader) Sweep(maxAge time.Duration) []string {
	now := h.clock()
	h.mu.Lock()
	var evicted []string
	for name, entry := range h.cache {
		if now.Sub(entry.LastExecuted) > maxAge {
			delete(h.cache, name)
			evicted = append(evicted, name)
		}
	}
	h.mu.Unlock()

	for _, name := range evicted {
		if h.dir == "" {
			continue
		}
		path := filepath.Join(h.dir, name+".lua")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			h.logger.Warn("remove script artifact failed", "path", path, "error", err)
		}
	}
	if len(evicted) > 0 {
		h.logger.Info("swept stale scripts", "count", len(evicted))
	}
	return evicted
}
