package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

const defaultLockTTL = 30 * time.Second

// errEventInFlight is returned while another worker holds the event lock.
// The queue retries the event later.
var errEventInFlight = errors.New("event is being processed by another worker")

// HistoryStore persists sync records
type HistoryStore interface {
	CreateSyncRecord(ctx context.Context, record *models.SyncRecord) (bool, error)
}

// EventLocks coordinates workers and counts processed events
type EventLocks interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
	IncrementStat(ctx context.Context, stat string) error
}

// recorder turns subtitles-loaded events into sync history
type recorder struct {
	store   HistoryStore
	locks   EventLocks
	lockTTL time.Duration
	logger  *logging.Logger
}

func newRecorder(store HistoryStore, locks EventLocks, logger *logging.Logger) *recorder {
	return &recorder{
		store:   store,
		locks:   locks,
		lockTTL: defaultLockTTL,
		logger:  logger,
	}
}

// handle records one event. Redelivered events are recorded once.
func (r *recorder) handle(ctx context.Context, event *models.SubtitlesLoadedEvent) error {
	logger := r.logger.WithSession(event.SessionID).WithField("event_id", event.ID)

	if r.locks != nil && event.ID != "" {
		resource := "event:" + event.ID
		acquired, err := r.locks.AcquireLock(ctx, resource, r.lockTTL)
		if err != nil {
			logger.WithError(err).Warn("failed to acquire event lock, recording anyway")
		} else if !acquired {
			metrics.RecordEventProcessed("in_flight")
			return errEventInFlight
		} else {
			defer func() {
				if err := r.locks.ReleaseLock(context.Background(), resource); err != nil {
					logger.WithError(err).Warn("failed to release event lock")
				}
			}()
		}
	}

	created, err := r.store.CreateSyncRecord(ctx, event.Record())
	if err != nil {
		metrics.RecordEventProcessed("failed")
		return fmt.Errorf("failed to record event %s: %w", event.ID, err)
	}

	if !created {
		metrics.RecordEventProcessed("duplicate")
		logger.Debug("event already recorded")
		return nil
	}

	metrics.RecordEventProcessed("recorded")
	if r.locks != nil {
		if err := r.locks.IncrementStat(ctx, "subtitles_loaded"); err != nil {
			logger.WithError(err).Warn("failed to increment stat")
		}
	}

	logger.LogSyncEvent("subtitles_loaded", "recorded", map[string]interface{}{
		"domain": event.Domain,
		"files":  len(event.Files),
	})
	return nil
}

// handleDeadLetter logs an event that exhausted its retries and drops it
func (r *recorder) handleDeadLetter(ctx context.Context, event *models.SubtitlesLoadedEvent) error {
	metrics.RecordEventProcessed("dead_lettered")
	r.logger.WithSession(event.SessionID).
		WithField("event_id", event.ID).
		WithDomain(event.Domain).
		Error("dropping dead-lettered event")
	return nil
}
