package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemory_Sessions(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SaveSession(context.Background(), Session{OriginalPrompt: "hi", EnhancedPrompt: "Hello!"}))

	got := m.Sessions()
	require.Len(t, got, 1)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
	assert.NotNil(t, got[0].ModelsUsed)
}

func TestMemory_StatusNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := m.CreateStatus(ctx, name)
		require.NoError(t, err)
	}

	all, err := m.ListStatus(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ClientName)
	assert.Equal(t, "a", all[2].ClientName)

	two, err := m.ListStatus(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestMemory_Bounded(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	total := DefaultStatusLimit + 5
	for i := 0; i < total; i++ {
		name := fmt.Sprintf("client-%d", i)
		_, err := m.CreateStatus(ctx, name)
		require.NoError(t, err)
		require.NoError(t, m.SaveSession(ctx, Session{OriginalPrompt: name}))
	}

	statuses, err := m.ListStatus(ctx, 0)
	require.NoError(t, err)
	require.Len(t, statuses, DefaultStatusLimit)
	assert.Equal(t, fmt.Sprintf("client-%d", total-1), statuses[0].ClientName)
	assert.Equal(t, "client-5", statuses[len(statuses)-1].ClientName)

	sessions := m.Sessions()
	require.Len(t, sessions, DefaultStatusLimit)
	assert.Equal(t, "client-5", sessions[0].OriginalPrompt)
	assert.Equal(t, fmt.Sprintf("client-%d", total-1), sessions[len(sessions)-1].OriginalPrompt)
}

type failingSink struct{ sawDeadline bool }

func (f *failingSink) SaveSession(ctx context.Context, _ Session) error {
	_, f.sawDeadline = ctx.Deadline()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("disk full")
}

func TestSaveBestEffort_DetachesAndLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &failingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	SaveBestEffort(ctx, sink, Session{ID: uuid.New()}, zap.New(core))

	assert.True(t, sink.sawDeadline)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to persist enhancement session", logs.All()[0].Message)
	assert.Equal(t, "disk full", logs.All()[0].ContextMap()["error"])
}

func TestSaveBestEffort_Persists(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	SaveBestEffort(ctx, m, Session{OriginalPrompt: "x"}, zap.NewNop())
	assert.Len(t, m.Sessions(), 1, "caller cancellation must not drop the write")
}
