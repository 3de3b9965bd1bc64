package bridge

import (
	"sync"
	"time"
)

// Event types pushed to subscribers
const (
	EventPickerState      = "picker-state"
	EventPickerVisibility = "picker-visibility"
	EventPlayback         = "playback"
	EventNotification     = "notification"
	EventGetSyncedData    = "get-synced-data"
	EventGetLanguageData  = "get-synced-language-data"
	EventSubtitlesLoaded  = "subtitles-loaded"
	EventOpenSettings     = "open-settings"
	EventSettingsUpdated  = "settings-updated"
)

const defaultSubscriberBacklog = 64

// Event is one outbound message for a session
type Event struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub fans events out to every subscriber of a session
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	backlog     int
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		backlog:     defaultSubscriberBacklog,
	}
}

// Subscribe returns a channel of events for sessionID and a function that
// ends the subscription
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, h.backlog)

	h.mu.Lock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[chan Event]struct{})
	}
	h.subscribers[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subscribers[sessionID]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(h.subscribers, sessionID)
				}
			}
			h.mu.Unlock()
		})
	}

	return ch, cancel
}

// Publish sends event to every subscriber of sessionID and returns how many
// received it. Subscribers that fall behind miss the event.
func (h *Hub) Publish(sessionID string, event Event) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subscribers[sessionID] {
		select {
		case ch <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers of sessionID
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}

// Close ends every subscription of sessionID
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers[sessionID] {
		close(ch)
	}
	delete(h.subscribers, sessionID)
}
