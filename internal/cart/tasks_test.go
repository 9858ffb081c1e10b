package cart

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewPurgeTask(t *testing.T) {
	task := NewPurgeTask()
	require.Equal(t, TypePurgeGuestCarts, task.Type())
	require.Empty(t, task.Payload())
}

func TestPurgeHandlerDeletesExpiredGuests(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	p := store.addProduct("10", "0", true)
	_, err := svc.AddItem(ctx, Owner{AnonID: "stale"}, p, 1)
	require.NoError(t, err)

	svc.Now = func() time.Time { return testNow.Add(45 * 24 * time.Hour) }
	h := PurgeHandler{Svc: svc, Logger: zerolog.Nop()}
	require.NoError(t, h.ProcessTask(ctx, NewPurgeTask()))
	require.Empty(t, store.carts)
}

func TestPurgeHandlerUnconfigured(t *testing.T) {
	h := PurgeHandler{Svc: &Service{}, Logger: zerolog.Nop()}
	require.Error(t, h.ProcessTask(context.Background(), NewPurgeTask()))
}
