package models

import "encoding/json"

// OpenReason explains why the picker was opened
type OpenReason string

// OpenReason constants
const (
	OpenReasonUserRequested             OpenReason = "userRequested"
	OpenReasonMiningCommand             OpenReason = "miningCommand"
	OpenReasonFailedToAutoLoadPreferred OpenReason = "failedToAutoLoadPreferredTrack"
)

// PickerSettings is the settings block rendered by the picker
type PickerSettings struct {
	ThemeType     string   `json:"themeType"`
	Profiles      []string `json:"profiles"`
	ActiveProfile string   `json:"activeProfile,omitempty"`
}

// PickerState is a state update pushed to the picker. Nil fields are left
// untouched by the receiver so partial updates can be sent.
type PickerState struct {
	Open                  *bool           `json:"open,omitempty"`
	OpenReason            OpenReason      `json:"openReason,omitempty"`
	IsLoading             *bool           `json:"isLoading,omitempty"`
	ShowSubSelect         *bool           `json:"showSubSelect,omitempty"`
	SuggestedName         *string         `json:"suggestedName,omitempty"`
	SelectedSubtitle      []string        `json:"selectedSubtitle,omitempty"`
	Subtitles             []SubtitleTrack `json:"subtitles,omitempty"`
	Error                 *string         `json:"error,omitempty"`
	DefaultCheckboxState  *bool           `json:"defaultCheckboxState,omitempty"`
	OpenedFromAsbplayerID *string         `json:"openedFromAsbplayerId,omitempty"`
	Settings              *PickerSettings `json:"settings,omitempty"`
	Episode               *int            `json:"episode,omitempty"`
	IsAnimeSite           *bool           `json:"isAnimeSite,omitempty"`
}

// MarshalJSON keeps empty track lists on the wire. An empty list replaces
// the picker's tracks while a nil one leaves them untouched.
func (s PickerState) MarshalJSON() ([]byte, error) {
	type plain PickerState
	out := struct {
		plain
		SelectedSubtitle *[]string        `json:"selectedSubtitle,omitempty"`
		Subtitles        *[]SubtitleTrack `json:"subtitles,omitempty"`
	}{plain: plain(s)}

	if s.SelectedSubtitle != nil {
		out.SelectedSubtitle = &s.SelectedSubtitle
	}
	if s.Subtitles != nil {
		out.Subtitles = &s.Subtitles
	}
	return json.Marshal(out)
}

// Merge applies the non-nil fields of update onto s
func (s *PickerState) Merge(update PickerState) {
	if update.Open != nil {
		s.Open = update.Open
	}
	if update.OpenReason != "" {
		s.OpenReason = update.OpenReason
	}
	if update.IsLoading != nil {
		s.IsLoading = update.IsLoading
	}
	if update.ShowSubSelect != nil {
		s.ShowSubSelect = update.ShowSubSelect
	}
	if update.SuggestedName != nil {
		s.SuggestedName = update.SuggestedName
	}
	if update.SelectedSubtitle != nil {
		s.SelectedSubtitle = update.SelectedSubtitle
	}
	if update.Subtitles != nil {
		s.Subtitles = update.Subtitles
	}
	if update.Error != nil {
		s.Error = update.Error
	}
	if update.DefaultCheckboxState != nil {
		s.DefaultCheckboxState = update.DefaultCheckboxState
	}
	if update.OpenedFromAsbplayerID != nil {
		s.OpenedFromAsbplayerID = update.OpenedFromAsbplayerID
	}
	if update.Settings != nil {
		s.Settings = update.Settings
	}
	if update.Episode != nil {
		s.Episode = update.Episode
	}
	if update.IsAnimeSite != nil {
		s.IsAnimeSite = update.IsAnimeSite
	}
}

// Bool returns a pointer to v
func Bool(v bool) *bool { return &v }

// String returns a pointer to v
func String(v string) *string { return &v }

// Int returns a pointer to v
func Int(v int) *int { return &v }
