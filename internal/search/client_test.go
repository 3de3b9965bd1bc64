package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/subsync/internal/config"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query     string            `json:"query"`
			Variables map[string]string `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body.Variables["search"] != "Sousou no Frieren" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"data":{"Media":null},"errors":[{"message":"Not Found.","status":404}]}`))
			return
		}
		w.Write([]byte(`{"data":{"Media":{"id":154587}}}`))
	})
	mux.HandleFunc("/api/entries/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid API key"}`))
			return
		}
		switch r.URL.Query().Get("anilist_id") {
		case "154587":
			w.Write([]byte(`[{"id":42,"name":"Sousou no Frieren"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("/api/entries/42/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("episode"))
		w.Write([]byte(`[
			{"name":"Frieren - 03.srt","url":"https://files.example.com/03.srt","size":1024},
			{"name":"","url":"https://files.example.com/empty.srt"},
			{"name":"Frieren - 03.ass","url":"https://files.example.com/03.ass"}
		]`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(config.SearchConfig{
		AnilistEndpoint:   server.URL + "/graphql",
		SubtitlesEndpoint: server.URL + "/api/",
		RequestsPerSecond: 100,
		Timeout:           time.Second,
	}, logging.Nop())
}

func TestResolveExternalID(t *testing.T) {
	client := newTestClient(newTestServer(t))

	id, err := client.ResolveExternalID(context.Background(), "Sousou no Frieren")
	require.NoError(t, err)
	assert.Equal(t, 154587, id)

	_, err = client.ResolveExternalID(context.Background(), "Unknown Show")
	assert.ErrorIs(t, err, ErrExternalIDNotFound)
}

func TestSearchSubtitles(t *testing.T) {
	client := newTestClient(newTestServer(t))

	results, err := client.SearchSubtitles(context.Background(), 154587, 3, "secret")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Frieren - 03.srt", results[0].Name)
	assert.Equal(t, "https://files.example.com/03.srt", results[0].URL)
}

func TestSearchSubtitlesNoEntry(t *testing.T) {
	client := newTestClient(newTestServer(t))

	results, err := client.SearchSubtitles(context.Background(), 1, 3, "secret")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSubtitlesServiceError(t *testing.T) {
	client := newTestClient(newTestServer(t))

	_, err := client.SearchSubtitles(context.Background(), 154587, 3, "wrong")

	var serviceErr *ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, http.StatusUnauthorized, serviceErr.StatusCode)
	assert.Equal(t, "Invalid API key", err.Error())
}

func TestServiceErrorFallbackMessage(t *testing.T) {
	err := serviceError("subtitles", http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	assert.Equal(t, "subtitles returned status 502", err.Error())
}
