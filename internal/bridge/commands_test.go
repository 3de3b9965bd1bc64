package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Command
	}{
		{
			name: "open settings",
			raw:  `{"command":"open-settings"}`,
			want: OpenSettings{},
		},
		{
			name: "active profile",
			raw:  `{"command":"active-profile","profile":"anime"}`,
			want: ActiveProfile{Profile: "anime"},
		},
		{
			name: "confirm",
			raw: `{"command":"confirm","shouldRememberTrackChoices":true,"syncWithAsbplayerId":"tab-1",
				"data":[{"id":"1","language":"ja","url":"https://x/ja.srt","label":"Japanese","extension":"srt","name":"Frieren"}]}`,
			want: Confirm{
				Data: []models.ConfirmedTrack{{
					SubtitleTrack: models.SubtitleTrack{ID: "1", Language: "ja", URL: "https://x/ja.srt", Label: "Japanese", Extension: "srt"},
					Name:          "Frieren",
				}},
				ShouldRememberTrackChoices: true,
				SyncWithAsbplayerID:        "tab-1",
			},
		},
		{
			name: "open file",
			raw:  `{"command":"open-file","subtitles":[{"name":"a.srt","payload":"aGVsbG8="}]}`,
			want: OpenFile{Subtitles: []models.SubtitleFile{{Name: "a.srt", Payload: []byte("hello")}}},
		},
		{
			name: "update episode",
			raw:  `{"command":"update-episode","episode":0}`,
			want: UpdateEpisode{Episode: 0},
		},
		{
			name: "search",
			raw:  `{"command":"search","title":"Frieren","episode":3}`,
			want: Search{Title: "Frieren", Episode: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
			assert.Equal(t, tt.want.Name(), cmd.Name())
		})
	}
}

func TestDecodeUnknownCommand(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"self-destruct"}`))
	assert.Nil(t, cmd)
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestDecodeInvalidPayload(t *testing.T) {
	_, err := Decode([]byte(`{"command":"search","episode":"three"}`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownCommand))

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
