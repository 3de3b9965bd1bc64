package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/internal/bridge"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/orchestrator"
	"github.com/therealutkarshpriyadarshi/subsync/internal/retriever"
	"github.com/therealutkarshpriyadarshi/subsync/internal/sites"
	"github.com/therealutkarshpriyadarshi/subsync/internal/storage"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// Session is one page being synced. The orchestrator runs server side and
// drives the client through the hub.
type Session struct {
	ID        string
	Owner     string
	PageURL   string
	CreatedAt time.Time

	orchestrator *orchestrator.Orchestrator
	remote       *remote
	state        *clientState
	files        *retriever.LocalFiles
	settings     SettingsSource
	archive      *storage.SessionLoader
	snapshots    *sites.SnapshotSource
	progress     ProgressStore
	logger       *logging.Logger

	// opMu serialises orchestrator operations. Client responses and page
	// reports bypass it so a blocked operation can still be answered.
	opMu   sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Snapshot is the externally visible state of a session
type Snapshot struct {
	ID            string             `json:"id"`
	Owner         string             `json:"owner"`
	PageURL       string             `json:"pageUrl"`
	Domain        string             `json:"domain"`
	State         orchestrator.State `json:"state"`
	SyncedData    *models.VideoData  `json:"syncedData,omitempty"`
	Picker        models.PickerState `json:"picker"`
	PickerVisible bool               `json:"pickerVisible"`
	Subscribers   int                `json:"subscribers"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Subscribe returns the event stream of the session
func (s *Session) Subscribe() (<-chan bridge.Event, func()) {
	return s.remote.hub.Subscribe(s.ID)
}

// Report records page state observed by the client. A DOM snapshot
// becomes the page the site resolver polls.
func (s *Session) Report(report PageReport) error {
	s.state.apply(report)

	if report.HTML != "" && s.snapshots != nil {
		return s.snapshots.Update(s.PageURL, report.HTML)
	}
	return nil
}

// RequestSubtitles starts a detection cycle
func (s *Session) RequestSubtitles(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.orchestrator.RequestSubtitles(ctx)
}

// SyncedData delivers a detection result
func (s *Session) SyncedData(ctx context.Context, data *models.VideoData) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.orchestrator.OnSyncedData(ctx, data)
}

// Command decodes and handles a raw picker message
func (s *Session) Command(ctx context.Context, raw []byte) error {
	cmd, err := bridge.Decode(raw)
	if err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.orchestrator.HandleCommand(ctx, cmd)
}

// Show opens the picker
func (s *Session) Show(ctx context.Context, opts orchestrator.ShowOptions) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.orchestrator.Show(ctx, opts)
}

// Respond delivers the client's answer to a pending request. It reports
// false when nothing waits for requestID.
func (s *Session) Respond(requestID string, payload json.RawMessage) bool {
	return s.remote.correlator.Resolve(requestID, payload)
}

// RegisterFile makes a file supplied by the user fetchable and returns its
// blob url
func (s *Session) RegisterFile(payload []byte) string {
	return s.files.Register(payload)
}

// ReloadSettings re-reads the owner's settings and applies them
func (s *Session) ReloadSettings(ctx context.Context) error {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.orchestrator.UpdateSettings(ctx, orchestrator.SettingsUpdate{
		AutoSync:            settings.AutoSync,
		LanguagePreferences: settings.LanguagePreferences,
	})
}

// Progress returns the retrieval progress of manifest tracks by name
func (s *Session) Progress(ctx context.Context) (map[string]int, error) {
	if s.progress == nil {
		return map[string]int{}, nil
	}
	return s.progress.GetRetrievalProgress(ctx, s.ID)
}

// Snapshot returns the current state of the session
func (s *Session) Snapshot() Snapshot {
	s.state.mu.RLock()
	picker := s.state.picker
	visible := s.state.pickerLoaded && !s.state.pickerHidden
	s.state.mu.RUnlock()

	return Snapshot{
		ID:            s.ID,
		Owner:         s.Owner,
		PageURL:       s.PageURL,
		Domain:        s.orchestrator.Domain(),
		State:         s.orchestrator.State(),
		SyncedData:    s.orchestrator.SyncedData(),
		Picker:        picker,
		PickerVisible: visible,
		Subscribers:   s.remote.hub.Subscribers(s.ID),
		CreatedAt:     s.CreatedAt,
	}
}

// discover runs server side track discovery in the background and feeds
// the result back as synced data
func (s *Session) discover(site orchestrator.SiteIdentity, provider Discovery) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		if !site.IsSupported(s.PageURL) {
			return false
		}

		apiKey, err := s.settings.APIKey(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("failed to read api key for discovery")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			data := provider.VideoData(s.ctx, s.PageURL, apiKey)
			if s.ctx.Err() != nil {
				return
			}
			if err := s.SyncedData(s.ctx, data); err != nil {
				s.logger.WithError(err).Warn("failed to apply discovered tracks")
			}
		}()
		return true
	}
}

func (s *Session) close(ctx context.Context) error {
	s.cancel()
	s.remote.correlator.Close()
	s.wg.Wait()

	s.orchestrator.Unbind()
	s.remote.hub.Close(s.ID)
	if s.snapshots != nil {
		s.snapshots.Forget(s.PageURL)
	}
	if s.progress != nil {
		if err := s.progress.ClearRetrievalProgress(ctx, s.ID); err != nil {
			s.logger.WithError(err).Warn("failed to clear retrieval progress")
		}
	}
	if s.archive != nil {
		return s.archive.Purge(ctx)
	}
	return nil
}
