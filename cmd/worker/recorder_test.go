package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/subsync/internal/cache"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// MockHistoryStore is a mock implementation of HistoryStore
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) CreateSyncRecord(ctx context.Context, record *models.SyncRecord) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func setupRecorder(t *testing.T) (*recorder, *MockHistoryStore, *cache.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	store := new(MockHistoryStore)
	return newRecorder(store, c, logging.Nop()), store, c, mr
}

func testEvent() *models.SubtitlesLoadedEvent {
	return &models.SubtitlesLoadedEvent{
		ID:        "evt-1",
		SessionID: "session-1",
		Owner:     "user-1",
		Domain:    "hianime.to",
		Files:     []string{"Frieren - Japanese.srt"},
		Timestamp: time.Now(),
	}
}

func TestRecorderRecordsEvent(t *testing.T) {
	rec, store, c, mr := setupRecorder(t)

	store.On("CreateSyncRecord", mock.Anything, mock.MatchedBy(func(r *models.SyncRecord) bool {
		return r.EventID == "evt-1" && r.Owner == "user-1" && r.FileCount == 1
	})).Return(true, nil)

	require.NoError(t, rec.handle(context.Background(), testEvent()))

	count, err := c.GetStat(context.Background(), "subtitles_loaded")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.False(t, mr.Exists("lock:event:evt-1"))
	store.AssertExpectations(t)
}

func TestRecorderSkipsDuplicates(t *testing.T) {
	rec, store, c, _ := setupRecorder(t)

	store.On("CreateSyncRecord", mock.Anything, mock.Anything).Return(false, nil)

	require.NoError(t, rec.handle(context.Background(), testEvent()))

	count, err := c.GetStat(context.Background(), "subtitles_loaded")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestRecorderReturnsStoreErrors(t *testing.T) {
	rec, store, _, mr := setupRecorder(t)

	store.On("CreateSyncRecord", mock.Anything, mock.Anything).Return(false, errors.New("connection reset"))

	err := rec.handle(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evt-1")
	assert.False(t, mr.Exists("lock:event:evt-1"))
}

func TestRecorderWaitsForLockHolder(t *testing.T) {
	rec, store, c, _ := setupRecorder(t)

	acquired, err := c.AcquireLock(context.Background(), "event:evt-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	err = rec.handle(context.Background(), testEvent())
	assert.ErrorIs(t, err, errEventInFlight)
	store.AssertNotCalled(t, "CreateSyncRecord", mock.Anything, mock.Anything)
}

func TestRecorderWithoutLocks(t *testing.T) {
	store := new(MockHistoryStore)
	store.On("CreateSyncRecord", mock.Anything, mock.Anything).Return(true, nil)

	rec := newRecorder(store, nil, logging.Nop())
	require.NoError(t, rec.handle(context.Background(), testEvent()))
	store.AssertExpectations(t)
}

func TestRecorderDropsDeadLetters(t *testing.T) {
	rec, store, _, _ := setupRecorder(t)

	assert.NoError(t, rec.handleDeadLetter(context.Background(), testEvent()))
	store.AssertNotCalled(t, "CreateSyncRecord", mock.Anything, mock.Anything)
}
