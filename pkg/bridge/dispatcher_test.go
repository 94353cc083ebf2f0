package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/datum/pkg/adapters/memory"
	"github.com/aretw0/datum/pkg/command"
	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/aretw0/datum/pkg/gateway"
	"github.com/aretw0/datum/pkg/script"
)

func gatewayFor(host *memory.Host) *gateway.Gateway {
	return gateway.New(host)
}

func domainRef(id domain.ElementID, category, typeName, name string) domain.ElementRef {
	return domain.ElementRef{ID: id, Category: category, TypeName: typeName, Name: name}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *memory.Host) {
	t.Helper()
	host := memory.NewHost()
	host.SeedType("Walls", `Generic - 8"`)

	fw := command.New(event.NewMemoryStore())
	fw.Register(command.NewCreateWall())

	gw := gatewayFor(host)
	loader := script.NewHotLoader(gw, t.TempDir())
	scripts := script.NewBridge(script.NewRegistry(), loader, nil)

	sess := command.Session{SessionID: "sess-1", UserID: "agent"}
	d := NewDispatcher(host, fw, scripts, sess)
	t.Cleanup(d.Close)
	return d, host
}

func wallRequest(id string, height float64) Request {
	return Request{
		Type:        TypeCommand,
		ID:          id,
		CommandType: "create_wall",
		Parameters: map[string]any{
			"start":     map[string]any{"x": 0.0, "y": 0.0, "z": 0.0},
			"end":       map[string]any{"x": 20.0, "y": 0.0, "z": 0.0},
			"height":    height,
			"wall_type": `Generic - 8"`,
		},
	}
}

func TestDispatcher_ExecutesCommand(t *testing.T) {
	d, host := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), wallRequest("req-1", 9.0))
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, "req-1", resp.CommandID)
	assert.Equal(t, 1, resp.Data["elementsAffected"])

	walls, err := host.ElementsByCategory(context.Background(), "Walls")
	require.NoError(t, err)
	assert.Len(t, walls, 1)
}

func TestDispatcher_ValidationFailureCode(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), wallRequest("req-2", 7.0))
	assert.False(t, resp.Success)
	assert.Equal(t, CodeValidationFailed, resp.ErrorCode)
}

func TestDispatcher_AcceptsBothCorrelationSpellings(t *testing.T) {
	d, _ := newTestDispatcher(t)

	req := wallRequest("", 9.0)
	req.CommandID = "cmd-77"
	resp := d.Dispatch(context.Background(), req)
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "cmd-77", resp.ID)
	assert.Equal(t, "cmd-77", resp.CommandID)
}

func TestDispatcher_RejectsMalformedEnvelope(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	resp := d.Dispatch(ctx, Request{Type: "telepathy", ID: "x"})
	assert.Equal(t, CodeBadRequest, resp.ErrorCode)

	resp = d.Dispatch(ctx, Request{Type: TypeCommand, CommandType: "create_wall"})
	assert.Equal(t, CodeBadRequest, resp.ErrorCode)
	assert.Contains(t, resp.Message, "correlation")

	resp = d.Dispatch(ctx, Request{Type: TypeScript, ID: "x"})
	assert.Equal(t, CodeBadRequest, resp.ErrorCode)
}

func TestDispatcher_ScriptHotLoadRoundTrip(t *testing.T) {
	d, host := newTestDispatcher(t)
	host.SeedElement(
		domainRef("wall-1", "Walls", `Generic - 8"`, "North wall"),
	)
	host.SetSelection("wall-1")

	raw := []byte(`{
		"type": "script",
		"commandId": "script-1",
		"scriptName": "announce",
		"source": "host.message(\"selected\", tostring(#host.selected()))"
	}`)
	out := d.HandleMessage(context.Background(), raw)

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, script.TypeHotLoaded, resp.ScriptType)
	assert.Equal(t, "script-1", resp.CommandID)
	assert.Len(t, host.Messages(), 1)
}

func TestDispatcher_ScriptFailureCode(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{
		Type:       TypeScript,
		ID:         "s-1",
		ScriptName: "broken",
		Source:     `error("boom")`,
	})
	assert.False(t, resp.Success)
	assert.Equal(t, CodeScriptFailed, resp.ErrorCode)
	assert.Contains(t, resp.Message, "boom")
}

func TestDispatcher_SelectionQuery(t *testing.T) {
	d, host := newTestDispatcher(t)
	host.SeedElement(domainRef("wall-1", "Walls", `Generic - 8"`, "North wall"))
	host.SeedElement(domainRef("door-1", "Doors", "Single", "Front door"))
	host.SetSelection("door-1")
	ctx := context.Background()

	resp := d.Dispatch(ctx, Request{Type: TypeSelectionQuery, ID: "q-1"})
	require.True(t, resp.Success)
	assert.Equal(t, 1, resp.Data["count"])

	resp = d.Dispatch(ctx, Request{Type: TypeSelectionQuery, ID: "q-2", Category: "Walls"})
	require.True(t, resp.Success)
	assert.Equal(t, 1, resp.Data["count"])

	resp = d.Dispatch(ctx, Request{Type: TypeSelectionQuery, ID: "q-3", Category: "Roofs"})
	require.True(t, resp.Success)
	assert.Equal(t, 0, resp.Data["count"])
}

func TestDispatcher_SerializesConcurrentRequests(t *testing.T) {
	d, host := newTestDispatcher(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resp := d.Dispatch(ctx, wallRequest("par-"+string(rune('a'+n)), 9.0))
			assert.True(t, resp.Success, resp.Message)
		}(i)
	}
	wg.Wait()

	walls, err := host.ElementsByCategory(ctx, "Walls")
	require.NoError(t, err)
	assert.Len(t, walls, 10)
}

func TestDispatcher_ClosedRefusesWork(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Close()

	resp := d.Dispatch(context.Background(), wallRequest("late", 9.0))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "closed")
}
