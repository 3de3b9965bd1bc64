package models

import "time"

// SyncRecord is one completed subtitle sync, recorded by the worker
type SyncRecord struct {
	ID                  string    `json:"id" db:"id"`
	EventID             string    `json:"event_id" db:"event_id"`
	SessionID           string    `json:"session_id" db:"session_id"`
	Owner               string    `json:"owner" db:"owner"`
	Domain              string    `json:"domain" db:"domain"`
	FileCount           int       `json:"file_count" db:"file_count"`
	Flatten             bool      `json:"flatten" db:"flatten"`
	SyncWithAsbplayerID string    `json:"sync_with_asbplayer_id,omitempty" db:"sync_with_asbplayer_id"`
	ObjectKeys          []string  `json:"object_keys" db:"object_keys"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// SubtitlesLoadedEvent is published whenever retrieved subtitles are handed
// to the player
type SubtitlesLoadedEvent struct {
	ID                  string    `json:"id"`
	SessionID           string    `json:"session_id"`
	Owner               string    `json:"owner"`
	Domain              string    `json:"domain"`
	Files               []string  `json:"files"`
	ObjectKeys          []string  `json:"object_keys"`
	URLs                []string  `json:"urls"`
	Flatten             bool      `json:"flatten"`
	SyncWithAsbplayerID string    `json:"sync_with_asbplayer_id,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// Record converts the event into a sync history record
func (e *SubtitlesLoadedEvent) Record() *SyncRecord {
	return &SyncRecord{
		EventID:             e.ID,
		SessionID:           e.SessionID,
		Owner:               e.Owner,
		Domain:              e.Domain,
		FileCount:           len(e.Files),
		Flatten:             e.Flatten,
		SyncWithAsbplayerID: e.SyncWithAsbplayerID,
		ObjectKeys:          e.ObjectKeys,
		CreatedAt:           e.Timestamp,
	}
}
