package retriever

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

func TestRetrieveAllConcatenatesAndFlattens(t *testing.T) {
	server := newSubtitleServer(t)
	r := New(nil, logging.Nop())

	result, err := r.RetrieveAll(context.Background(), []TrackRequest{
		{Name: "Frieren", Language: "-", Extension: "srt", URL: models.EmptyTrackID},
		{Name: "Frieren - ja", Language: "ja", Extension: "srt", URL: server.URL + "/subs/ja.srt"},
		{Name: "Frieren - hls", Language: "ja", Extension: "m3u8", URL: server.URL + "/hls/index.m3u8"},
	})
	require.NoError(t, err)
	assert.True(t, result.Flatten)
	assert.Len(t, result.Files, 5)
	assert.Equal(t, "Frieren.srt", result.Files[0].Name)
	assert.Equal(t, "Frieren - ja.srt", result.Files[1].Name)
	assert.Equal(t, "Frieren - hls.vtt", result.Files[4].Name)
	assert.Empty(t, result.Skipped)
}

func TestRetrieveAllSkipsLazyFailures(t *testing.T) {
	server := newSubtitleServer(t)
	r := New(nil, logging.Nop(), WithLazyResolver(&fakeLazy{data: &models.VideoData{Error: "not ready"}}))

	result, err := r.RetrieveAll(context.Background(), []TrackRequest{
		{Name: "lazy", Language: "en", Extension: "srt", URL: models.LazyURL},
		{Name: "direct", Language: "ja", Extension: "srt", URL: server.URL + "/subs/ja.srt"},
	})
	require.NoError(t, err)
	assert.False(t, result.Flatten)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "direct.srt", result.Files[0].Name)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "lazy", result.Skipped[0].Name)
}

func TestRetrieveAllAbortsOnHTTPError(t *testing.T) {
	server := newSubtitleServer(t)
	r := New(nil, logging.Nop())

	result, err := r.RetrieveAll(context.Background(), []TrackRequest{
		{Name: "missing", Language: "en", Extension: "srt", URL: server.URL + "/subs/missing.srt"},
		{Name: "direct", Language: "ja", Extension: "srt", URL: server.URL + "/subs/ja.srt"},
	})
	assert.Nil(t, result)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, "Data Sync failed: Subtitle Retrieval failed with Status 404/Not Found...", err.Error())

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestRetrieveAllCancelled(t *testing.T) {
	server := newSubtitleServer(t)
	r := New(nil, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RetrieveAll(ctx, []TrackRequest{
		{Name: "direct", Language: "ja", Extension: "srt", URL: server.URL + "/subs/ja.srt"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultName(t *testing.T) {
	ja := models.SubtitleTrack{ID: "1", Language: "ja", URL: "https://x/ja.srt", Label: "Japanese"}

	assert.Equal(t, "Frieren", DefaultName("Frieren", models.EmptyTrack("None")))
	assert.Equal(t, "Frieren - Japanese", DefaultName("Frieren", ja))
	assert.Equal(t, "Japanese", DefaultName("", ja))
}

func TestRequests(t *testing.T) {
	confirmed := []models.ConfirmedTrack{{
		SubtitleTrack: models.SubtitleTrack{Language: "ja", URL: "blob:x", Extension: "ass", LocalFile: true},
		Name:          "mine",
	}}

	assert.Equal(t, []TrackRequest{{Name: "mine", Language: "ja", Extension: "ass", URL: "blob:x", LocalFile: true}},
		Requests(confirmed))
}
