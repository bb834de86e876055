package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodwill_sniper/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "sniper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniper.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.ListBidAttempts(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBidAttempts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordBidAttempt(ctx, model.BidAttempt{ItemID: 1, Title: "Lamp", Amount: "50.00", Outcome: model.BidPlaced, AttemptedAt: at}))
	require.NoError(t, s.RecordBidAttempt(ctx, model.BidAttempt{ItemID: 2, Amount: "7.00", Outcome: model.BidRejected, Message: "outbid", AttemptedAt: at.Add(time.Minute)}))
	require.Error(t, s.RecordBidAttempt(ctx, model.BidAttempt{Amount: "1.00"}))

	got, err := s.ListBidAttempts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ItemID)
	assert.Equal(t, model.BidRejected, got[0].Outcome)
	assert.Equal(t, "outbid", got[0].Message)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "Lamp", got[1].Title)
	assert.Equal(t, "50.00", got[1].Amount)
	assert.True(t, got[1].AttemptedAt.Equal(at))

	got, err = s.ListBidAttempts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAlertEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordAlertEvent(ctx, model.AlertEvent{ItemID: 9, Title: "Vase", Offset: time.Hour, Remaining: 59*time.Minute + 30*time.Second, EmittedAt: at}))
	require.NoError(t, s.RecordAlertEvent(ctx, model.AlertEvent{ItemID: 9, Title: "Vase", Offset: 15 * time.Minute, Remaining: 14 * time.Minute, EmittedAt: at.Add(45 * time.Minute)}))

	got, err := s.ListAlertEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 15*time.Minute, got[0].Offset)
	assert.Equal(t, time.Hour, got[1].Offset)
	assert.Equal(t, 59*time.Minute+30*time.Second, got[1].Remaining)
	assert.True(t, got[1].EmittedAt.Equal(at))
}
