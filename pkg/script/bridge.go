package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/domain"
)

// Script type tags reported back to callers, so an agent can tell
// whether its request ran an established script or freshly generated
// code.
const (
	TypeExisting  = "existing_script"
	TypeHotLoaded = "ai_generated_hotloaded"
)

// InvokeRequest asks the bridge to run a script by name. Source is
// optional: when the name is not registered, it carries the generated
// Lua (raw text or a .lua path) to hot-load instead.
type InvokeRequest struct {
	Name    string             `json:"name"`
	Source  string             `json:"source,omitempty"`
	Params  map[string]any     `json:"params,omitempty"`
	Targets []domain.ElementID `json:"targets,omitempty"`
}

// InvokeOutcome is the result of a bridge invocation.
type InvokeOutcome struct {
	ScriptType string                `json:"script_type"`
	Result     *domain.CommandResult `json:"result"`
}

// Bridge routes script invocations: registered scripts run through the
// registry, unknown names with source fall through to the hot-loader.
type Bridge struct {
	registry *Registry
	loader   *HotLoader
	logger   *slog.Logger
}

// NewBridge wires a registry and a hot-loader together.
func NewBridge(registry *Registry, loader *HotLoader, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bridge{registry: registry, loader: loader, logger: logger}
}

// Invoke runs the request. The routing decision is by name first: an
// agent calling a script it has used before always gets the registered
// version, even if it also sent source.
func (b *Bridge) Invoke(ctx context.Context, req InvokeRequest) (InvokeOutcome, error) {
	if req.Name == "" {
		return InvokeOutcome{}, fmt.Errorf("script name is required")
	}

	if b.registry.Registered(req.Name) {
		result, err := b.registry.Invoke(ctx, req.Name, req.Params)
		if err != nil {
			return InvokeOutcome{}, err
		}
		return InvokeOutcome{ScriptType: TypeExisting, Result: result}, nil
	}

	if req.Source == "" {
		return InvokeOutcome{}, fmt.Errorf("script %q: %w", req.Name, domain.ErrScriptNotFound)
	}

	b.logger.Info("hot-loading generated script", "name", req.Name)
	record, err := b.loader.LoadAndExecute(ctx, req.Name, req.Source, req.Targets)
	if err != nil {
		return InvokeOutcome{}, err
	}
	return InvokeOutcome{
		ScriptType: TypeHotLoaded,
		Result: &domain.CommandResult{
			Success:       true,
			Message:       fmt.Sprintf("script %q hot-loaded and executed", req.Name),
			ExecutionTime: time.Duration(record.LastExecutionTimeMs * float64(time.Millisecond)),
		},
	}, nil
}
