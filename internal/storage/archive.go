package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// ObjectStore is the subset of Storage the archive needs
type ObjectStore interface {
	Bucket() string
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	GetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
	BatchDelete(ctx context.Context, keys []string) error
}

// EventPublisher receives an event for every loaded batch
type EventPublisher interface {
	PublishSubtitlesLoaded(ctx context.Context, event *models.SubtitlesLoadedEvent) error
}

// SubtitleArchive hands retrieved subtitles to players by uploading them and
// publishing presigned links
type SubtitleArchive struct {
	store      ObjectStore
	publishers []EventPublisher
	expiry     time.Duration
	logger     *logging.Logger
}

// NewSubtitleArchive creates an archive publishing events to publishers
func NewSubtitleArchive(store ObjectStore, expiry time.Duration, logger *logging.Logger, publishers ...EventPublisher) *SubtitleArchive {
	if expiry <= 0 {
		expiry = time.Hour
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SubtitleArchive{store: store, publishers: publishers, expiry: expiry, logger: logger}
}

// SessionLoader loads subtitles for one sync session
type SessionLoader struct {
	archive   *SubtitleArchive
	sessionID string
	owner     string
	domain    string
	extra     []EventPublisher
}

// ForSession returns a loader scoped to a session. Extra publishers receive
// the events of this session only and run before the archive-wide ones. The
// first publisher must succeed; failures of the rest are only logged.
func (a *SubtitleArchive) ForSession(sessionID, owner, domain string, extra ...EventPublisher) *SessionLoader {
	return &SessionLoader{archive: a, sessionID: sessionID, owner: owner, domain: domain, extra: extra}
}

// LoadSubtitles uploads files under the session prefix and announces them
func (l *SessionLoader) LoadSubtitles(ctx context.Context, files []models.SubtitleFile, flatten bool, syncWithID string) error {
	a := l.archive
	event := &models.SubtitlesLoadedEvent{
		ID:                  uuid.New().String(),
		SessionID:           l.sessionID,
		Owner:               l.owner,
		Domain:              l.domain,
		Flatten:             flatten,
		SyncWithAsbplayerID: syncWithID,
		Timestamp:           time.Now().UTC(),
	}

	for _, file := range files {
		key := objectKey(l.sessionID, file.Name)
		start := time.Now()

		err := a.store.Upload(ctx, key, bytes.NewReader(file.Payload), int64(len(file.Payload)), getContentType(file.Name))
		a.logger.LogStorageOperation("upload", a.store.Bucket(), key, int64(len(file.Payload)), time.Since(start), err)
		if err != nil {
			metrics.RecordStorageOperation("upload", "error", time.Since(start).Seconds())
			return fmt.Errorf("failed to store %s: %w", file.Name, err)
		}
		metrics.RecordStorageOperation("upload", "success", time.Since(start).Seconds())

		url, err := a.store.GetURL(ctx, key, a.expiry)
		if err != nil {
			return fmt.Errorf("failed to link %s: %w", file.Name, err)
		}

		event.Files = append(event.Files, file.Name)
		event.ObjectKeys = append(event.ObjectKeys, key)
		event.URLs = append(event.URLs, url)
	}

	publishers := append(append([]EventPublisher{}, l.extra...), a.publishers...)
	for i, publisher := range publishers {
		if err := publisher.PublishSubtitlesLoaded(ctx, event); err != nil {
			if i == 0 {
				return fmt.Errorf("failed to deliver subtitles: %w", err)
			}
			a.logger.WithSession(l.sessionID).WithError(err).Warn("failed to publish subtitles loaded event")
		}
	}

	return nil
}

// Purge removes every object stored for the session
func (l *SessionLoader) Purge(ctx context.Context) error {
	keys, err := l.archive.store.List(ctx, l.sessionID+"/")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return l.archive.store.BatchDelete(ctx, keys)
}

func objectKey(sessionID, name string) string {
	return path.Join(sessionID, uuid.New().String(), path.Base("/"+name))
}
