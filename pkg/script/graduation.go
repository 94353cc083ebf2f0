package script

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/datum/pkg/domain"
)

// Candidate is a hot-loaded script scored for promotion into the
// registry.
type Candidate struct {
	Script HotLoadedScript `json:"script"`
	Score  float64         `json:"score"`
}

// GraduationScore rates a hot-loaded script between 0 and 1. Heavily
// used, fast and recently exercised scripts score highest:
//
//	0.5 * usage   (saturating at 10 executions)
//	0.3 * speed   (linear penalty up to 1s last execution time)
//	0.2 * recency (linear penalty up to 30 days since last run)
func GraduationScore(s HotLoadedScript, now time.Time) float64 {
	usage := float64(s.ExecutionCount) / 10
	if usage > 1 {
		usage = 1
	}
	speed := 1 - s.LastExecutionTimeMs/1000
	if speed < 0 {
		speed = 0
	}
	ageDays := now.Sub(s.LastExecuted).Hours() / 24
	recency := 1 - ageDays/30
	if recency < 0 {
		recency = 0
	}
	return 0.5*usage + 0.3*speed + 0.2*recency
}

// GraduationCandidates returns scripts whose successful execution count
// meets the threshold, scored and sorted best first. A trailing failure
// does not disqualify a script that has already proven itself.
func (h *HotLoader) GraduationCandidates(minExecutions int) []Candidate {
	now := h.clock()
	h.mu.Lock()
	var out []Candidate
	for _, entry := range h.cache {
		if entry.ExecutionCount == 0 || entry.ExecutionCount < minExecutions {
			continue
		}
		out = append(out, Candidate{Script: *entry, Score: GraduationScore(*entry, now)})
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Script.Name < out[j].Script.Name
	})
	return out
}

// Graduate promotes a hot-loaded script into the registry. The runner
// re-executes the cached content through the hot-loader, so promoted
// scripts keep the same sandbox and atomicity guarantees.
func (h *HotLoader) Graduate(name, description string, reg *Registry) error {
	h.mu.Lock()
	entry, ok := h.cache[name]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("script %q: %w", name, domain.ErrScriptNotFound)
	}
	content := entry.Content
	h.mu.Unlock()

	reg.Register(Metadata{
		Name:        name,
		Path:        name + ".lua",
		Description: description,
	}, func(ctx context.Context, params map[string]any) (*domain.CommandResult, error) {
		record, err := h.LoadAndExecute(ctx, name, content, targetsFromParams(params))
		if err != nil {
			return nil, err
		}
		return &domain.CommandResult{
			Success:       true,
			Message:       fmt.Sprintf("script %q executed", name),
			ExecutionTime: time.Duration(record.LastExecutionTimeMs * float64(time.Millisecond)),
		}, nil
	})
	return nil
}

// targetsFromParams extracts an optional "targets" element ID list from
// script parameters.
func targetsFromParams(params map[string]any) []domain.ElementID {
	raw, ok := params["targets"].([]any)
	if !ok {
		return nil
	}
	out := make([]domain.ElementID, 0, len(raw))
	for _, v := range raw {
		if s, err := domain.AsString(v); err == nil {
			out = append(out, domain.ElementID(s))
		}
	}
	return out
}
