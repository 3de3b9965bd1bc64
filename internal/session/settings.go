package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// SettingsSource is the per-user settings store a session reads and writes
type SettingsSource interface {
	Settings(ctx context.Context) (*models.Settings, error)
	PickerSettings(ctx context.Context) (models.PickerSettings, error)
	APIKey(ctx context.Context) (string, error)
	SetActiveProfile(ctx context.Context, profile string) error
	SaveLanguagePreference(ctx context.Context, domain string, languages []string) error
	SaveLanguagePreferences(ctx context.Context, prefs map[string][]string) error
}

// SettingsFactory returns the settings source of owner
type SettingsFactory func(owner string) SettingsSource

// MemorySettings keeps settings in process. It backs sessions when no
// database is configured.
type MemorySettings struct {
	mu       sync.RWMutex
	settings map[string]*models.Settings
}

// NewMemorySettings creates an empty store
func NewMemorySettings() *MemorySettings {
	return &MemorySettings{settings: make(map[string]*models.Settings)}
}

// Save replaces the settings of settings.Owner
func (m *MemorySettings) Save(settings *models.Settings) {
	copied := copySettings(settings)
	copied.UpdatedAt = time.Now()

	m.mu.Lock()
	m.settings[settings.Owner] = copied
	m.mu.Unlock()
}

// ForOwner returns the settings source of owner
func (m *MemorySettings) ForOwner(owner string) SettingsSource {
	return &memoryOwner{store: m, owner: owner}
}

func (m *MemorySettings) load(owner string) *models.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if settings, ok := m.settings[owner]; ok {
		return copySettings(settings)
	}
	return models.DefaultSettings(owner)
}

func (m *MemorySettings) update(owner string, fn func(*models.Settings) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, ok := m.settings[owner]
	if !ok {
		settings = models.DefaultSettings(owner)
	}
	settings = copySettings(settings)
	if err := fn(settings); err != nil {
		return err
	}
	settings.UpdatedAt = time.Now()
	m.settings[owner] = settings
	return nil
}

type memoryOwner struct {
	store *MemorySettings
	owner string
}

func (o *memoryOwner) Settings(ctx context.Context) (*models.Settings, error) {
	return o.store.load(o.owner), nil
}

func (o *memoryOwner) PickerSettings(ctx context.Context) (models.PickerSettings, error) {
	return o.store.load(o.owner).Picker(), nil
}

func (o *memoryOwner) APIKey(ctx context.Context) (string, error) {
	return o.store.load(o.owner).APIKey, nil
}

func (o *memoryOwner) SetActiveProfile(ctx context.Context, profile string) error {
	return o.store.update(o.owner, func(s *models.Settings) error {
		if profile != "" && !contains(s.Profiles, profile) {
			return fmt.Errorf("unknown profile %q", profile)
		}
		s.ActiveProfile = profile
		return nil
	})
}

func (o *memoryOwner) SaveLanguagePreference(ctx context.Context, domain string, languages []string) error {
	return o.store.update(o.owner, func(s *models.Settings) error {
		s.LanguagePreferences[domain] = append([]string{}, languages...)
		return nil
	})
}

func (o *memoryOwner) SaveLanguagePreferences(ctx context.Context, prefs map[string][]string) error {
	return o.store.update(o.owner, func(s *models.Settings) error {
		s.LanguagePreferences = copyPreferences(prefs)
		return nil
	})
}

func copySettings(s *models.Settings) *models.Settings {
	copied := *s
	copied.Profiles = append([]string{}, s.Profiles...)
	copied.LanguagePreferences = copyPreferences(s.LanguagePreferences)
	return &copied
}

func copyPreferences(prefs map[string][]string) map[string][]string {
	copied := make(map[string][]string, len(prefs))
	for domain, languages := range prefs {
		copied[domain] = append([]string{}, languages...)
	}
	return copied
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
