package models

import "time"

// Settings are the stored preferences of one user
type Settings struct {
	Owner               string              `json:"owner"`
	ThemeType           string              `json:"themeType"`
	Profiles            []string            `json:"profiles"`
	ActiveProfile       string              `json:"activeProfile,omitempty"`
	APIKey              string              `json:"-"`
	AutoSync            bool                `json:"autoSync"`
	LanguagePreferences map[string][]string `json:"languagePreferences"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// DefaultSettings returns the settings of a user who never saved any
func DefaultSettings(owner string) *Settings {
	return &Settings{
		Owner:               owner,
		ThemeType:           "dark",
		Profiles:            []string{},
		LanguagePreferences: map[string][]string{},
	}
}

// Picker returns the block of settings rendered by the picker
func (s *Settings) Picker() PickerSettings {
	profiles := make([]string, len(s.Profiles))
	copy(profiles, s.Profiles)
	return PickerSettings{
		ThemeType:     s.ThemeType,
		Profiles:      profiles,
		ActiveProfile: s.ActiveProfile,
	}
}
