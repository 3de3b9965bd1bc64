package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/subsync/internal/bridge"
	"github.com/therealutkarshpriyadarshi/subsync/internal/config"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/orchestrator"
	"github.com/therealutkarshpriyadarshi/subsync/internal/preferences"
	"github.com/therealutkarshpriyadarshi/subsync/internal/retriever"
	"github.com/therealutkarshpriyadarshi/subsync/internal/sites"
	"github.com/therealutkarshpriyadarshi/subsync/internal/storage"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// ErrNotFound is returned for unknown session ids
var ErrNotFound = errors.New("session not found")

const (
	defaultResponseTimeout = 30 * time.Second
	defaultProgressTTL     = 10 * time.Minute
)

// ProgressStore keeps manifest retrieval progress per session
type ProgressStore interface {
	SetRetrievalProgress(ctx context.Context, sessionID, name string, percent int, ttl time.Duration) error
	GetRetrievalProgress(ctx context.Context, sessionID string) (map[string]int, error)
	ClearRetrievalProgress(ctx context.Context, sessionID string) error
}

// Discovery finds the tracks of a supported page without the client
type Discovery interface {
	VideoData(ctx context.Context, pageURL, apiKey string) *models.VideoData
}

// Options are the shared collaborators of every session. Hub and Settings
// are required.
type Options struct {
	Sync            config.SyncConfig
	Hub             *bridge.Hub
	Settings        SettingsFactory
	Site            orchestrator.SiteIdentity
	Snapshots       *sites.SnapshotSource
	Searcher        orchestrator.Searcher
	Discovery       Discovery
	Archive         *storage.SubtitleArchive
	Progress        ProgressStore
	ProgressTTL     time.Duration
	ResponseTimeout time.Duration
	Logger          *logging.Logger
}

// Manager owns the open sessions
type Manager struct {
	opts   Options
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.ResponseTimeout == 0 {
		opts.ResponseTimeout = defaultResponseTimeout
	}
	if opts.ProgressTTL == 0 {
		opts.ProgressTTL = defaultProgressTTL
	}

	return &Manager{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session for pageURL owned by owner
func (m *Manager) Open(ctx context.Context, owner, pageURL string) (*Session, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid page url %q", pageURL)
	}

	source := m.opts.Settings(owner)
	settings, err := source.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	id := uuid.New().String()
	logger := m.logger.WithSession(id)
	state := &clientState{}
	r := &remote{
		id:         id,
		hub:        m.opts.Hub,
		correlator: bridge.NewCorrelator(),
		state:      state,
		timeout:    m.opts.ResponseTimeout,
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		Owner:     owner,
		PageURL:   pageURL,
		CreatedAt: time.Now(),
		remote:    r,
		state:     state,
		files:     retriever.NewLocalFiles(u.Scheme + "://" + u.Host),
		settings:  source,
		snapshots: m.opts.Snapshots,
		progress:  m.opts.Progress,
		logger:    logger,
		ctx:       sessionCtx,
		cancel:    cancel,
	}

	if m.opts.Discovery != nil && m.opts.Site != nil {
		r.discover = s.discover(m.opts.Site, m.opts.Discovery)
	}

	var loader orchestrator.SubtitleLoader = inlineLoader{remote: r}
	if m.opts.Archive != nil {
		s.archive = m.opts.Archive.ForSession(id, owner, u.Host, r)
		loader = s.archive
	}

	tracks := retriever.New(s.files, logger,
		retriever.WithLazyResolver(r),
		retriever.WithProgress(retriever.ProgressFunc(s.reportProgress(m.opts.ProgressTTL))),
	)

	autoSync := m.opts.Sync.AutoSync
	if !settings.UpdatedAt.IsZero() {
		autoSync = settings.AutoSync
	}

	orch, err := orchestrator.New(orchestrator.Config{
		PageURL:          pageURL,
		AutoSync:         autoSync,
		EmptyTrackLabel:  m.opts.Sync.EmptyTrackLabel,
		SearchTrackLabel: m.opts.Sync.SearchTrackLabel,
		SearchLanguage:   m.opts.Sync.SearchLanguage,
	}, orchestrator.Dependencies{
		Picker:      r,
		Playback:    r,
		Loader:      loader,
		Page:        r,
		Settings:    source,
		Site:        m.opts.Site,
		Searcher:    m.opts.Searcher,
		Extension:   r,
		Retriever:   tracks,
		Preferences: preferences.NewStore(settings.LanguagePreferences, source),
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.orchestrator = orch

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	metrics.SessionOpened()
	logger.WithDomain(u.Host).Info("session opened")
	return s, nil
}

// Get returns the session with id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns the sessions of owner, oldest first
func (m *Manager) List(owner string) []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Owner == owner {
			sessions = append(sessions, s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends the session with id and releases its resources
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	metrics.SessionClosed()
	s.logger.Info("session closed")
	return s.close(ctx)
}

// SettingsChanged pushes the stored settings of owner to all of their
// sessions
func (m *Manager) SettingsChanged(ctx context.Context, owner string) {
	for _, s := range m.List(owner) {
		if err := s.ReloadSettings(ctx); err != nil {
			s.logger.WithError(err).Warn("failed to reload settings")
		}
	}
}

// Shutdown closes every session
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.WithError(err).WithSession(id).Warn("failed to close session")
		}
	}
}

func (s *Session) reportProgress(ttl time.Duration) func(ctx context.Context, name string, percent int) {
	return func(ctx context.Context, name string, percent int) {
		s.remote.Notify(retriever.ProgressMessage(name, percent))

		if s.progress == nil {
			return
		}
		if err := s.progress.SetRetrievalProgress(ctx, s.ID, name, percent, ttl); err != nil {
			s.logger.WithError(err).Warn("failed to store retrieval progress")
		}
	}
}
