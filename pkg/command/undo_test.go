package command

import (
	"context"
	"testing"

	"github.com/aretw0/datum/pkg/domain"
	"github.com/aretw0/datum/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndo_CreateWallDeletesIt(t *testing.T) {
	fw, host, store := newTestFramework(t)
	ctx := context.Background()
	sess := Session{SessionID: "s1", UserID: "u1"}

	result := fw.Execute(ctx, host, wallCommand(9.0), sess)
	require.True(t, result.Success)
	commandID := result.Data["command_id"].(string)

	walls, err := host.ElementsByCategory(ctx, "Walls")
	require.NoError(t, err)
	require.Len(t, walls, 1)

	require.NoError(t, fw.Undo(ctx, host, commandID, sess))

	walls, err = host.ElementsByCategory(ctx, "Walls")
	require.NoError(t, err)
	assert.Empty(t, walls)

	// The undo journals its own transaction with a deletion event.
	events, err := store.BySession(ctx, "s1")
	require.NoError(t, err)
	var deletions int
	for _, evt := range events {
		if evt.Type == event.TypeElementDeleted {
			deletions++
		}
	}
	assert.Equal(t, 1, deletions)
}

func TestUndo_SetParameterRestoresOldValue(t *testing.T) {
	fw, host, _ := newTestFramework(t)
	ctx := context.Background()
	sess := Session{SessionID: "s1"}

	host.SeedElement(
		domain.ElementRef{ID: "w1", Category: "Walls", TypeName: `Generic - 8"`},
		domain.Parameter{Name: "Comments", Value: "original"},
	)

	result := fw.Execute(ctx, host, domain.Command{
		Type: "set_parameter",
		Parameters: map[string]any{
			"element_id": "w1",
			"name":       "Comments",
			"value":      "changed",
		},
	}, sess)
	require.True(t, result.Success, result.Message)

	params, err := host.ElementParameters(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "changed", params[0].Value)

	commandID := result.Data["command_id"].(string)
	require.NoError(t, fw.Undo(ctx, host, commandID, sess))

	params, err = host.ElementParameters(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "original", params[0].Value)
}

func TestUndo_DeleteElementRecreates(t *testing.T) {
	fw, host, _ := newTestFramework(t)
	ctx := context.Background()
	sess := Session{SessionID: "s1"}

	host.SeedElement(domain.ElementRef{ID: "w1", Category: "Walls", TypeName: `Generic - 8"`, Name: "North wall"})

	result := fw.Execute(ctx, host, domain.Command{
		Type:       "delete_element",
		Parameters: map[string]any{"element_id": "w1"},
	}, sess)
	require.True(t, result.Success, result.Message)

	commandID := result.Data["command_id"].(string)
	require.NoError(t, fw.Undo(ctx, host, commandID, sess))

	walls, err := host.ElementsByCategory(ctx, "Walls")
	require.NoError(t, err)
	require.Len(t, walls, 1)
	assert.Equal(t, "North wall", walls[0].Name)
}

func TestUndo_RejectsUncommittedCommand(t *testing.T) {
	fw, host, store := newTestFramework(t)
	ctx := context.Background()
	sess := Session{SessionID: "s1"}

	// Journal a started-but-rolled-back command by hand.
	_, err := store.Append(ctx, event.Event{
		SessionID: "s1", CommandID: "c1",
		Payload: event.TransactionStarted{Name: "create_wall"},
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, event.Event{
		SessionID: "s1", CommandID: "c1",
		Payload: event.TransactionRolledBack{Name: "create_wall", Reason: "x"},
	})
	require.NoError(t, err)

	err = fw.Undo(ctx, host, "c1", sess)
	assert.ErrorContains(t, err, "not committed")
}

func TestUndo_UnknownCommandID(t *testing.T) {
	fw, host, _ := newTestFramework(t)
	err := fw.Undo(context.Background(), host, "missing", Session{SessionID: "s1"})
	assert.Error(t, err)
}
