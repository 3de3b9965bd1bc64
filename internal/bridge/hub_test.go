package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubPublishesToSessionSubscribers(t *testing.T) {
	hub := NewHub()

	first, cancelFirst := hub.Subscribe("session-1")
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe("session-1")
	defer cancelSecond()
	other, cancelOther := hub.Subscribe("session-2")
	defer cancelOther()

	delivered := hub.Publish("session-1", Event{Type: EventNotification, Data: "Frieren.vtt (33%)"})
	assert.Equal(t, 2, delivered)

	for _, ch := range []<-chan Event{first, second} {
		event := <-ch
		assert.Equal(t, EventNotification, event.Type)
		assert.Equal(t, "Frieren.vtt (33%)", event.Data)
		assert.False(t, event.Timestamp.IsZero())
	}
	assert.Len(t, other, 0)
}

func TestHubCancel(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("session-1")
	assert.Equal(t, 1, hub.Subscribers("session-1"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("session-1"))
	assert.Equal(t, 0, hub.Publish("session-1", Event{Type: EventPlayback}))
}

func TestHubDropsEventsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	hub.backlog = 1

	ch, cancel := hub.Subscribe("session-1")
	defer cancel()

	assert.Equal(t, 1, hub.Publish("session-1", Event{Type: EventPlayback}))
	assert.Equal(t, 0, hub.Publish("session-1", Event{Type: EventPlayback}))
	assert.Len(t, ch, 1)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("session-1")

	hub.Close("session-1")
	cancel()

	_, open := <-ch
	assert.False(t, open)
}
