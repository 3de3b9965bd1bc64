package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// Command names sent by the picker
const (
	CommandOpenSettings  = "open-settings"
	CommandActiveProfile = "active-profile"
	CommandConfirm       = "confirm"
	CommandOpenFile      = "open-file"
	CommandUpdateEpisode = "update-episode"
	CommandSearch        = "search"
)

// ErrUnknownCommand is returned by Decode for commands nobody handles
var ErrUnknownCommand = errors.New("unknown command")

// Command is a tagged message received from the picker
type Command interface {
	Name() string
}

// OpenSettings asks for the extension settings page
type OpenSettings struct{}

// ActiveProfile switches the active settings profile
type ActiveProfile struct {
	Profile string `json:"profile"`
}

// Confirm carries the tracks the user picked
type Confirm struct {
	Data                       []models.ConfirmedTrack `json:"data"`
	ShouldRememberTrackChoices bool                    `json:"shouldRememberTrackChoices"`
	SyncWithAsbplayerID        string                  `json:"syncWithAsbplayerId,omitempty"`
}

// OpenFile carries subtitle files supplied directly by the user
type OpenFile struct {
	Subtitles []models.SubtitleFile `json:"subtitles"`
}

// UpdateEpisode changes the episode used for searches
type UpdateEpisode struct {
	Episode int `json:"episode"`
}

// Search asks for remote subtitles for a title and episode
type Search struct {
	Title   string `json:"title"`
	Episode int    `json:"episode"`
}

func (OpenSettings) Name() string  { return CommandOpenSettings }
func (ActiveProfile) Name() string { return CommandActiveProfile }
func (Confirm) Name() string       { return CommandConfirm }
func (OpenFile) Name() string      { return CommandOpenFile }
func (UpdateEpisode) Name() string { return CommandUpdateEpisode }
func (Search) Name() string        { return CommandSearch }

type envelope struct {
	Command string `json:"command"`
}

// Decode parses a raw picker message. Messages with an unrecognised command
// return ErrUnknownCommand.
func Decode(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid command message: %w", err)
	}

	var (
		cmd Command
		err error
	)
	switch env.Command {
	case CommandOpenSettings:
		cmd = OpenSettings{}
	case CommandActiveProfile:
		var c ActiveProfile
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CommandConfirm:
		var c Confirm
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CommandOpenFile:
		var c OpenFile
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CommandUpdateEpisode:
		var c UpdateEpisode
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CommandSearch:
		var c Search
		err = json.Unmarshal(raw, &c)
		cmd = c
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, env.Command)
	}

	if err != nil {
		return nil, fmt.Errorf("invalid %s command: %w", env.Command, err)
	}
	return cmd, nil
}
