package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/datum/pkg/adapters/memory"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/gateway"
)

func newTestLoader(t *testing.T) (*HotLoader, *memory.Host, *time.Time) {
	t.Helper()
	host := memory.NewHost()
	host.SeedType("Walls", `Generic - 8"`)
	host.SeedElement(
		domain.ElementRef{ID: "wall-1", Category: "Walls", TypeName: `Generic - 8"`, Name: "North wall"},
		domain.Parameter{Name: "Height", Value: 9.0},
	)
	host.SetSelection("wall-1")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	loader := NewHotLoader(gateway.New(host), t.TempDir(), withLoaderClock(func() time.Time { return now }))
	return loader, host, &now
}

func TestHotLoader_ExecutesAndCaches(t *testing.T) {
	loader, host, _ := newTestLoader(t)
	ctx := context.Background()

	record, err := loader.LoadAndExecute(ctx, "raise_walls", `
		for _, e in ipairs(host.selected()) do
			host.set_parameter(e.id, "Height", 12)
		end
	`, nil)
	require.NoError(t, err)
	assert.True(t, record.Success)
	assert.Equal(t, 1, record.ExecutionCount)

	params, err := host.ElementParameters(ctx, "wall-1")
	require.NoError(t, err)
	assert.Equal(t, 12, params[0].Value)

	// Second run bumps the counter on the same cache entry.
	record, err = loader.LoadAndExecute(ctx, "raise_walls", record.Content, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, record.ExecutionCount)
}

func TestHotLoader_MaterializesArtifact(t *testing.T) {
	loader, _, _ := newTestLoader(t)

	_, err := loader.LoadAndExecute(context.Background(), "greet", `host.message("hi", "there")`, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(loader.dir, "greet.lua"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "host.message")
}

func TestHotLoader_LoadsFromFile(t *testing.T) {
	loader, host, _ := newTestLoader(t)

	path := filepath.Join(loader.dir, "stored.lua")
	require.NoError(t, os.MkdirAll(loader.dir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`host.message("from", "file")`), 0o644))

	_, err := loader.LoadAndExecute(context.Background(), "stored", "stored.lua", nil)
	require.NoError(t, err)
	assert.Len(t, host.Messages(), 1)
}

func TestHotLoader_FailureRollsBackDocument(t *testing.T) {
	loader, host, _ := newTestLoader(t)
	ctx := context.Background()

	before, err := host.Snapshot(ctx)
	require.NoError(t, err)

	// Mutates first, then fails. The mutation must not survive.
	_, err = loader.LoadAndExecute(ctx, "broken", `
		host.set_parameter("wall-1", "Height", 99)
		error("boom")
	`, nil)
	require.Error(t, err)

	after, err := host.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	record, ok := loader.Script("broken")
	require.True(t, ok)
	assert.False(t, record.Success)

	// Failed scripts are not materialized.
	_, statErr := os.Stat(filepath.Join(loader.dir, "broken.lua"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestHotLoader_Sweep(t *testing.T) {
	loader, _, now := newTestLoader(t)
	ctx := context.Background()

	_, err := loader.LoadAndExecute(ctx, "old", `host.message("a", "b")`, nil)
	require.NoError(t, err)

	*now = now.Add(48 * time.Hour)
	_, err = loader.LoadAndExecute(ctx, "fresh", `host.message("c", "d")`, nil)
	require.NoError(t, err)

	evicted := loader.Sweep(24 * time.Hour)
	assert.Equal(t, []string{"old"}, evicted)

	_, ok := loader.Script("old")
	assert.False(t, ok)
	_, ok = loader.Script("fresh")
	assert.True(t, ok)

	_, statErr := os.Stat(filepath.Join(loader.dir, "old.lua"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGraduation_ScoresAndOrdering(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	proven := HotLoadedScript{
		Name:                "proven",
		ExecutionCount:      12,
		LastExecutionTimeMs: 50,
		LastExecuted:        now.Add(-time.Hour),
		Success:             true,
	}
	marginal := HotLoadedScript{
		Name:                "marginal",
		ExecutionCount:      2,
		LastExecutionTimeMs: 2000,
		LastExecuted:        now.Add(-29 * 24 * time.Hour),
		Success:             true,
	}

	provenScore := GraduationScore(proven, now)
	marginalScore := GraduationScore(marginal, now)
	assert.Greater(t, provenScore, marginalScore)
	// Usage saturated, fast, recent: 0.5 + 0.3*0.95 + ~0.2.
	assert.InDelta(t, 0.984, provenScore, 0.01)
	// Slow execution zeroes the speed term; 29 days leaves little recency.
	assert.InDelta(t, 0.5*0.2+0.2*(1-29.0/30), marginalScore, 0.01)
}

func TestGraduation_CandidatesFilterAndSort(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := loader.LoadAndExecute(ctx, "frequent", `host.message("a", "b")`, nil)
		require.NoError(t, err)
	}
	_, err := loader.LoadAndExecute(ctx, "rare", `host.message("c", "d")`, nil)
	require.NoError(t, err)
	_, _ = loader.LoadAndExecute(ctx, "failing", `error("nope")`, nil)

	candidates := loader.GraduationCandidates(2)
	require.Len(t, candidates, 1)
	assert.Equal(t, "frequent", candidates[0].Script.Name)
	assert.Greater(t, candidates[0].Score, 0.0)
}

func TestHotLoader_FailureDoesNotCountAsExecution(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	ctx := context.Background()

	good := `host.message("ok", "fine")`
	for i := 0; i < 3; i++ {
		_, err := loader.LoadAndExecute(ctx, "resilient", good, nil)
		require.NoError(t, err)
	}
	_, err := loader.LoadAndExecute(ctx, "resilient", `error("regression")`, nil)
	require.Error(t, err)

	record, ok := loader.Script("resilient")
	require.True(t, ok)
	assert.Equal(t, 3, record.ExecutionCount)
	assert.Equal(t, 1, record.FailureCount)
	assert.False(t, record.Success)
	// The broken revision must not replace the content that worked.
	assert.Equal(t, good, record.Content)

	// A proven script survives a trailing failure as a candidate.
	candidates := loader.GraduationCandidates(3)
	require.Len(t, candidates, 1)
	assert.Equal(t, "resilient", candidates[0].Script.Name)

	// One failure followed by one success counts a single execution.
	_, _ = loader.LoadAndExecute(ctx, "flaky", `error("first")`, nil)
	_, err = loader.LoadAndExecute(ctx, "flaky", good, nil)
	require.NoError(t, err)
	record, ok = loader.Script("flaky")
	require.True(t, ok)
	assert.Equal(t, 1, record.ExecutionCount)
	assert.Equal(t, 1, record.FailureCount)
}

func TestRegistry_InvokeTracksUsage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(withRegistryClock(func() time.Time { return now }))

	reg.Register(Metadata{Name: "hello", Description: "test script"},
		func(ctx context.Context, params map[string]any) (*domain.CommandResult, error) {
			return &domain.CommandResult{Success: true, Message: "hi"}, nil
		})

	result, err := reg.Invoke(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	meta, err := reg.Metadata("hello")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.UsageCount)
	assert.Equal(t, now, meta.LastUsed)

	_, err = reg.Invoke(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, domain.ErrScriptNotFound)
}

type recordingStore struct {
	saved []Metadata
}

func (s *recordingStore) SaveMetadata(ctx context.Context, meta Metadata) error {
	s.saved = append(s.saved, meta)
	return nil
}

func (s *recordingStore) LoadAll(ctx context.Context) ([]Metadata, error) {
	return nil, nil
}

func TestRegistry_FailedInvocationLeavesUsageUntouched(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	reg := NewRegistry(
		WithRegistryStore(store),
		withRegistryClock(func() time.Time { return now }),
	)

	reg.Register(Metadata{Name: "broken"},
		func(ctx context.Context, params map[string]any) (*domain.CommandResult, error) {
			return nil, errors.New("runner blew up")
		})

	_, err := reg.Invoke(context.Background(), "broken", nil)
	require.Error(t, err)

	meta, err := reg.Metadata("broken")
	require.NoError(t, err)
	assert.Equal(t, 0, meta.UsageCount)
	assert.True(t, meta.LastUsed.IsZero())
	assert.Empty(t, store.saved)
}

func TestRegistry_CleanupEvictsStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(withRegistryClock(func() time.Time { return now }))

	noop := func(ctx context.Context, params map[string]any) (*domain.CommandResult, error) {
		return &domain.CommandResult{Success: true}, nil
	}
	reg.Register(Metadata{Name: "stale", LastUsed: now.Add(-48 * time.Hour)}, noop)
	reg.Register(Metadata{Name: "fresh", LastUsed: now.Add(-time.Hour)}, noop)
	reg.Register(Metadata{Name: "never"}, noop)

	removed := reg.Cleanup(24 * time.Hour)
	assert.Equal(t, []string{"stale"}, removed)
	assert.False(t, reg.Registered("stale"))
	assert.True(t, reg.Registered("fresh"))
	assert.True(t, reg.Registered("never"))
}

func TestRegistry_LoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scripts.yaml")
	manifest := `scripts:
  - name: rename_views
    path: rename_views.lua
    description: Renames all views by pattern
    parameters: [pattern]
  - name: ""
    path: ignored.lua
`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	metas, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "rename_views", metas[0].Name)
	assert.Equal(t, []string{"pattern"}, metas[0].Parameters)

	// Missing manifests are fine.
	metas, err = LoadManifest(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestBridge_RoutesByRegistration(t *testing.T) {
	loader, host, _ := newTestLoader(t)
	reg := NewRegistry()
	bridge := NewBridge(reg, loader, nil)
	ctx := context.Background()

	// Unknown name without source refuses.
	_, err := bridge.Invoke(ctx, InvokeRequest{Name: "novel"})
	assert.ErrorIs(t, err, domain.ErrScriptNotFound)

	// Unknown name with source hot-loads.
	outcome, err := bridge.Invoke(ctx, InvokeRequest{
		Name:   "novel",
		Source: `host.message("gen", "erated")`,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeHotLoaded, outcome.ScriptType)
	assert.Len(t, host.Messages(), 1)

	// Registered names take priority over source.
	reg.Register(Metadata{Name: "novel"},
		func(ctx context.Context, params map[string]any) (*domain.CommandResult, error) {
			return &domain.CommandResult{Success: true, Message: "registered"}, nil
		})
	outcome, err = bridge.Invoke(ctx, InvokeRequest{Name: "novel", Source: `error("never runs")`})
	require.NoError(t, err)
	assert.Equal(t, TypeExisting, outcome.ScriptType)
	assert.Equal(t, "registered", outcome.Result.Message)
}

func TestGraduate_PromotesIntoRegistry(t *testing.T) {
	loader, host, _ := newTestLoader(t)
	reg := NewRegistry()
	bridge := NewBridge(reg, loader, nil)
	ctx := context.Background()

	_, err := bridge.Invoke(ctx, InvokeRequest{
		Name:   "greeter",
		Source: `host.message("hello", "world")`,
	})
	require.NoError(t, err)

	require.NoError(t, loader.Graduate("greeter", "Shows a greeting", reg))
	require.True(t, reg.Registered("greeter"))

	outcome, err := bridge.Invoke(ctx, InvokeRequest{Name: "greeter"})
	require.NoError(t, err)
	assert.Equal(t, TypeExisting, outcome.ScriptType)
	assert.Len(t, host.Messages(), 2)

	assert.Error(t, loader.Graduate("never-ran", "", reg))
}
