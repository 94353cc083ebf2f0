package datum_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/datum"
	"github.com/aretw0/datum/pkg/adapters/memory"
	"github.com/aretw0/datum/pkg/bridge"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/script"
)

func newTestEngine(t *testing.T) (*datum.Engine, *memory.Host) {
	t.Helper()
	host := memory.NewHost()
	host.SeedType("Walls", `Generic - 8"`)

	engine, err := datum.New(host, datum.WithScriptsDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, host
}

func wallCommand(height float64) domain.Command {
	return domain.Command{
		Type: "create_wall",
		Parameters: map[string]any{
			"start":     map[string]any{"x": 0.0, "y": 0.0, "z": 0.0},
			"end":       map[string]any{"x": 20.0, "y": 0.0, "z": 0.0},
			"height":    height,
			"wall_type": `Generic - 8"`,
		},
	}
}

func TestEngine_RequiresDocument(t *testing.T) {
	_, err := datum.New(nil)
	assert.Error(t, err)
}

func TestEngine_ExecuteAndUndo(t *testing.T) {
	engine, host := newTestEngine(t)
	ctx := context.Background()

	result := engine.Execute(ctx, wallCommand(9.0))
	require.True(t, result.Success, result.Message)
	assert.Equal(t, 1, result.ElementsAffected)

	walls, err := host.ElementsByCategory(ctx, "Walls")
	require.NoError(t, err)
	require.Len(t, walls, 1)

	commandID, ok := result.Data["command_id"].(string)
	require.True(t, ok)
	require.NoError(t, engine.Undo(ctx, commandID))

	walls, err = host.ElementsByCategory(ctx, "Walls")
	require.NoError(t, err)
	assert.Empty(t, walls)
}

func TestEngine_ValidateOnly(t *testing.T) {
	engine, _ := newTestEngine(t)

	res := engine.Validate(context.Background(), wallCommand(7.0))
	assert.False(t, res.IsValid)
	assert.Equal(t, domain.PhaseSemantic, res.FailedPhase)
}

func TestEngine_DispatchBridgeRequest(t *testing.T) {
	engine, _ := newTestEngine(t)

	resp := engine.Dispatch(context.Background(), bridge.Request{
		Type:        bridge.TypeCommand,
		ID:          "facade-1",
		CommandType: "create_wall",
		Parameters:  wallCommand(9.0).Parameters,
	})
	assert.True(t, resp.Success, resp.Message)
	assert.Equal(t, "facade-1", resp.ID)
}

func TestEngine_ScriptSweepEvictsStale(t *testing.T) {
	host := memory.NewHost()
	engine, err := datum.New(host,
		datum.WithScriptsDir(t.TempDir()),
		datum.WithScriptSweep(5*time.Millisecond, time.Nanosecond))
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	_, err = engine.InvokeScript(context.Background(), script.InvokeRequest{
		Name:   "ephemeral",
		Source: `host.message("hi", "there")`,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := engine.HotLoader().Script("ephemeral")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_ScriptLifecycle(t *testing.T) {
	engine, host := newTestEngine(t)
	ctx := context.Background()
	host.SeedElement(domain.ElementRef{ID: "wall-1", Category: "Walls", TypeName: `Generic - 8"`})
	host.SetSelection("wall-1")

	outcome, err := engine.InvokeScript(ctx, script.InvokeRequest{
		Name:   "greet",
		Source: `host.message("hello", "from script")`,
	})
	require.NoError(t, err)
	assert.Equal(t, script.TypeHotLoaded, outcome.ScriptType)

	require.NoError(t, engine.HotLoader().Graduate("greet", "greets", engine.Registry()))

	outcome, err = engine.InvokeScript(ctx, script.InvokeRequest{Name: "greet"})
	require.NoError(t, err)
	assert.Equal(t, script.TypeExisting, outcome.ScriptType)
	assert.Len(t, host.Messages(), 2)
}
