package event

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SequencePerSession(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, Event{
			SessionID: "s1",
			CommandID: "c1",
			Payload:   TransactionStarted{Name: "create_wall"},
		})
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, Event{
		SessionID: "s2",
		CommandID: "c2",
		Payload:   TransactionStarted{Name: "create_wall"},
	})
	require.NoError(t, err)

	s1, err := s.BySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s1, 3)
	for i, evt := range s1 {
		// Strictly increasing and gap-free, starting at 1.
		assert.Equal(t, uint64(i+1), evt.Seq)
	}

	s2, err := s.BySession(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, s2, 1)
	assert.Equal(t, uint64(1), s2[0].Seq)
}

func TestMemoryStore_ConcurrentAppendsStayGapFree(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, Event{
				SessionID: "s1",
				CommandID: "c1",
				Payload:   ElementCreated{ElementID: "e"},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := s.BySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 50)

	seen := make(map[uint64]bool)
	for _, evt := range events {
		seen[evt.Seq] = true
	}
	for i := uint64(1); i <= 50; i++ {
		assert.True(t, seen[i], "missing seq %d", i)
	}
}

func TestMemoryStore_ByCommand(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Append(ctx, Event{SessionID: "s1", CommandID: "a", Payload: ElementCreated{ElementID: "e1"}})
	require.NoError(t, err)
	_, err = s.Append(ctx, Event{SessionID: "s1", CommandID: "b", Payload: ElementCreated{ElementID: "e2"}})
	require.NoError(t, err)

	events, err := s.ByCommand(ctx, "a")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ElementCreated{ElementID: "e1"}, events[0].Payload)
}

func TestMemoryStore_RejectsIncompleteEvents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Append(ctx, Event{CommandID: "c", Payload: ElementCreated{}})
	assert.Error(t, err)

	_, err = s.Append(ctx, Event{SessionID: "s", CommandID: "c"})
	assert.Error(t, err)
}

func TestPayloadRoundTrip(t *testing.T) {
	payloads := []Payload{
		ElementCreated{ElementID: "w1", Category: "Walls", TypeName: "Generic"},
		ElementModified{ElementID: "w1", Parameter: "Height", OldValue: 8.0, NewValue: 9.0},
		TransactionRolledBack{Name: "create_wall", Reason: "boom"},
	}
	for _, p := range payloads {
		data, err := MarshalPayload(p)
		require.NoError(t, err)
		back, err := UnmarshalPayload(p.EventType(), data)
		require.NoError(t, err)
		assert.Equal(t, p.EventType(), back.EventType())
	}

	_, err := UnmarshalPayload("bogus", []byte("{}"))
	assert.Error(t, err)
}
