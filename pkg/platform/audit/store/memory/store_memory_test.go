package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "hemolink/pkg/domain"
	audit "hemolink/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	first := id.NewRequestID()
	second := id.NewRequestID()

	require.NoError(t, store.Append(ctx, audit.Event{RequestID: first, Action: "request_submitted", Timestamp: time.Now()}))
	require.NoError(t, store.Append(ctx, audit.Event{RequestID: first, Action: "alert_dispatched", Timestamp: time.Now()}))
	require.NoError(t, store.Append(ctx, audit.Event{RequestID: second, Action: "request_submitted", Timestamp: time.Now()}))

	events, err := store.ListByRequest(ctx, first)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "request_submitted", events[0].Action)
	assert.Equal(t, "alert_dispatched", events[1].Action)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	t.Run("returned slice is a copy", func(t *testing.T) {
		events[0].Action = "mutated"
		again, err := store.ListByRequest(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "request_submitted", again[0].Action)
	})

	t.Run("clear drops everything", func(t *testing.T) {
		store.Clear()
		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
