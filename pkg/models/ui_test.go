package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickerStateKeepsEmptyTrackLists(t *testing.T) {
	raw, err := json.Marshal(PickerState{
		IsLoading:        Bool(false),
		SelectedSubtitle: []string{},
		Subtitles:        []SubtitleTrack{},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"isLoading":false,"selectedSubtitle":[],"subtitles":[]}`, string(raw))

	var decoded PickerState
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotNil(t, decoded.Subtitles)
	assert.Empty(t, decoded.Subtitles)
}

func TestPickerStateOmitsUnsetTrackLists(t *testing.T) {
	raw, err := json.Marshal(PickerState{Open: Bool(true)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"open":true}`, string(raw))

	var decoded PickerState
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded.Subtitles)
	assert.Nil(t, decoded.SelectedSubtitle)
}

func TestPickerStateMergeReplacesWithEmptyTracks(t *testing.T) {
	state := PickerState{Subtitles: []SubtitleTrack{{ID: "fetched-0", Language: "ja"}}}

	state.Merge(PickerState{IsLoading: Bool(false)})
	assert.Len(t, state.Subtitles, 1)

	state.Merge(PickerState{Subtitles: []SubtitleTrack{}})
	assert.NotNil(t, state.Subtitles)
	assert.Empty(t, state.Subtitles)
}
