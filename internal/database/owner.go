package database

import (
	"context"

	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// OwnerSettings scopes the repository to one user so it can serve a sync
// session as its settings source and preference persister
type OwnerSettings struct {
	repo  *Repository
	owner string
}

// ForOwner returns the settings of owner
func (r *Repository) ForOwner(owner string) *OwnerSettings {
	return &OwnerSettings{repo: r, owner: owner}
}

// Owner returns the user the settings belong to
func (s *OwnerSettings) Owner() string {
	return s.owner
}

// Settings returns every stored setting
func (s *OwnerSettings) Settings(ctx context.Context) (*models.Settings, error) {
	return s.repo.GetSettings(ctx, s.owner)
}

// PickerSettings returns the block rendered by the picker
func (s *OwnerSettings) PickerSettings(ctx context.Context) (models.PickerSettings, error) {
	settings, err := s.repo.GetSettings(ctx, s.owner)
	if err != nil {
		return models.PickerSettings{}, err
	}
	return settings.Picker(), nil
}

// APIKey returns the subtitle search api key
func (s *OwnerSettings) APIKey(ctx context.Context) (string, error) {
	settings, err := s.repo.GetSettings(ctx, s.owner)
	if err != nil {
		return "", err
	}
	return settings.APIKey, nil
}

// SetActiveProfile switches the active profile
func (s *OwnerSettings) SetActiveProfile(ctx context.Context, profile string) error {
	return s.repo.SetActiveProfile(ctx, s.owner, profile)
}

// SaveLanguagePreference stores the languages remembered for domain
func (s *OwnerSettings) SaveLanguagePreference(ctx context.Context, domain string, languages []string) error {
	return s.repo.SaveLanguagePreference(ctx, s.owner, domain, languages)
}

// SaveLanguagePreferences replaces the stored language preferences
func (s *OwnerSettings) SaveLanguagePreferences(ctx context.Context, prefs map[string][]string) error {
	return s.repo.SaveLanguagePreferences(ctx, s.owner, prefs)
}
