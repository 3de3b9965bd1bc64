package retriever

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// BlobScheme is the url scheme of registered local files
const BlobScheme = "blob"

// LocalFiles holds files the user supplied from disk, addressable through
// single-use blob urls until revoked
type LocalFiles struct {
	origin string

	mu    sync.RWMutex
	files map[string][]byte
}

// NewLocalFiles creates an empty registry; origin becomes part of every url
func NewLocalFiles(origin string) *LocalFiles {
	return &LocalFiles{
		origin: origin,
		files:  make(map[string][]byte),
	}
}

// Register stores payload and returns the blob url serving it
func (l *LocalFiles) Register(payload []byte) string {
	blobURL := fmt.Sprintf("%s:%s/%s", BlobScheme, l.origin, uuid.New().String())

	l.mu.Lock()
	l.files[blobURL] = payload
	l.mu.Unlock()

	return blobURL
}

// Revoke releases the file behind blobURL
func (l *LocalFiles) Revoke(blobURL string) {
	l.mu.Lock()
	delete(l.files, blobURL)
	l.mu.Unlock()
}

// Len returns the number of live registrations
func (l *LocalFiles) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}

// RoundTrip serves registered files to an http.Client
func (l *LocalFiles) RoundTrip(req *http.Request) (*http.Response, error) {
	l.mu.RLock()
	payload, ok := l.files[req.URL.String()]
	l.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("local file %s is not registered", req.URL)
	}

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          io.NopCloser(bytes.NewReader(payload)),
		ContentLength: int64(len(payload)),
		Request:       req,
	}, nil
}

// Client returns an http.Client that also resolves blob urls from l
func (l *LocalFiles) Client() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol(BlobScheme, l)
	return &http.Client{Transport: transport}
}
