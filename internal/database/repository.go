package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func observe(operation string, err error) error {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDatabaseOperation(operation, status)
	return err
}

// Settings

// GetSettings returns the settings of owner, including profiles and
// language preferences. Owners without a row get the defaults.
func (r *Repository) GetSettings(ctx context.Context, owner string) (*models.Settings, error) {
	settings := models.DefaultSettings(owner)

	query := `
		SELECT theme_type, active_profile, api_key, auto_sync, updated_at
		FROM user_settings
		WHERE owner = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, owner).Scan(
		&settings.ThemeType, &settings.ActiveProfile, &settings.APIKey,
		&settings.AutoSync, &settings.UpdatedAt,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, observe("get_settings", fmt.Errorf("failed to get settings: %w", err))
	}

	if settings.Profiles, err = r.ListProfiles(ctx, owner); err != nil {
		return nil, err
	}
	if settings.LanguagePreferences, err = r.LoadLanguagePreferences(ctx, owner); err != nil {
		return nil, err
	}

	return settings, observe("get_settings", nil)
}

// SaveSettings upserts the scalar settings of an owner
func (r *Repository) SaveSettings(ctx context.Context, settings *models.Settings) error {
	query := `
		INSERT INTO user_settings (owner, theme_type, active_profile, api_key, auto_sync, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (owner) DO UPDATE
		SET theme_type = EXCLUDED.theme_type,
		    active_profile = EXCLUDED.active_profile,
		    api_key = EXCLUDED.api_key,
		    auto_sync = EXCLUDED.auto_sync,
		    updated_at = NOW()
		RETURNING updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		settings.Owner, settings.ThemeType, settings.ActiveProfile, settings.APIKey, settings.AutoSync,
	).Scan(&settings.UpdatedAt)
	if err != nil {
		return observe("save_settings", fmt.Errorf("failed to save settings: %w", err))
	}

	return observe("save_settings", nil)
}

// SetActiveProfile switches the active profile. An empty profile selects
// the default one; any other profile must exist.
func (r *Repository) SetActiveProfile(ctx context.Context, owner, profile string) error {
	if profile != "" {
		var exists bool
		err := r.db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM profiles WHERE owner = $1 AND name = $2)`,
			owner, profile,
		).Scan(&exists)
		if err != nil {
			return observe("set_active_profile", fmt.Errorf("failed to check profile: %w", err))
		}
		if !exists {
			return observe("set_active_profile", fmt.Errorf("profile %q: %w", profile, ErrNotFound))
		}
	}

	query := `
		INSERT INTO user_settings (owner, active_profile, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (owner) DO UPDATE
		SET active_profile = EXCLUDED.active_profile, updated_at = NOW()
	`

	if _, err := r.db.Pool.Exec(ctx, query, owner, profile); err != nil {
		return observe("set_active_profile", fmt.Errorf("failed to set active profile: %w", err))
	}

	return observe("set_active_profile", nil)
}

// Profiles

// AddProfile creates a named settings profile
func (r *Repository) AddProfile(ctx context.Context, owner, name string) error {
	query := `
		INSERT INTO profiles (owner, name)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.db.Pool.Exec(ctx, query, owner, name); err != nil {
		return observe("add_profile", fmt.Errorf("failed to add profile: %w", err))
	}
	return observe("add_profile", nil)
}

// RemoveProfile deletes a profile, clearing it when it is the active one
func (r *Repository) RemoveProfile(ctx context.Context, owner, name string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM profiles WHERE owner = $1 AND name = $2`, owner, name)
	if err != nil {
		return observe("remove_profile", fmt.Errorf("failed to remove profile: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return observe("remove_profile", fmt.Errorf("profile %q: %w", name, ErrNotFound))
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_settings SET active_profile = '', updated_at = NOW() WHERE owner = $1 AND active_profile = $2`,
		owner, name,
	)
	if err != nil {
		return observe("remove_profile", fmt.Errorf("failed to reset active profile: %w", err))
	}

	return observe("remove_profile", tx.Commit(ctx))
}

// ListProfiles returns the profile names of owner in creation order
func (r *Repository) ListProfiles(ctx context.Context, owner string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name FROM profiles WHERE owner = $1 ORDER BY created_at, name`, owner)
	if err != nil {
		return nil, observe("list_profiles", fmt.Errorf("failed to list profiles: %w", err))
	}
	defer rows.Close()

	profiles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, name)
	}

	return profiles, observe("list_profiles", rows.Err())
}

// Language Preferences

// LoadLanguagePreferences returns the per-domain language preferences of owner
func (r *Repository) LoadLanguagePreferences(ctx context.Context, owner string) (map[string][]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT domain, languages FROM language_preferences WHERE owner = $1`, owner)
	if err != nil {
		return nil, observe("load_language_preferences", fmt.Errorf("failed to load language preferences: %w", err))
	}
	defer rows.Close()

	prefs := map[string][]string{}
	for rows.Next() {
		var domain string
		var languages []string
		if err := rows.Scan(&domain, &languages); err != nil {
			return nil, fmt.Errorf("failed to scan language preference: %w", err)
		}
		prefs[domain] = languages
	}

	return prefs, observe("load_language_preferences", rows.Err())
}

// SaveLanguagePreferences replaces every language preference of owner
func (r *Repository) SaveLanguagePreferences(ctx context.Context, owner string, prefs map[string][]string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM language_preferences WHERE owner = $1`, owner); err != nil {
		return observe("save_language_preferences", fmt.Errorf("failed to clear language preferences: %w", err))
	}

	domains := make([]string, 0, len(prefs))
	for domain := range prefs {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	batch := &pgx.Batch{}
	for _, domain := range domains {
		batch.Queue(
			`INSERT INTO language_preferences (owner, domain, languages) VALUES ($1, $2, $3)`,
			owner, domain, prefs[domain],
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return observe("save_language_preferences", fmt.Errorf("failed to save language preferences: %w", err))
	}

	return observe("save_language_preferences", tx.Commit(ctx))
}

// SaveLanguagePreference upserts the languages of one domain, leaving the
// owner's other domains as they are
func (r *Repository) SaveLanguagePreference(ctx context.Context, owner, domain string, languages []string) error {
	if languages == nil {
		languages = []string{}
	}

	query := `
		INSERT INTO language_preferences (owner, domain, languages)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, domain) DO UPDATE SET languages = EXCLUDED.languages
	`

	if _, err := r.db.Pool.Exec(ctx, query, owner, domain, languages); err != nil {
		return observe("save_language_preference", fmt.Errorf("failed to save language preference: %w", err))
	}
	return observe("save_language_preference", nil)
}

// Sync History

// CreateSyncRecord stores a completed sync. Records carrying an event id
// already stored are ignored and reported as false.
func (r *Repository) CreateSyncRecord(ctx context.Context, record *models.SyncRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sync_history (id, event_id, session_id, owner, domain, file_count, flatten, sync_with_asbplayer_id, object_keys, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING created_at
	`

	objectKeys := record.ObjectKeys
	if objectKeys == nil {
		objectKeys = []string{}
	}

	err := r.db.Pool.QueryRow(ctx, query,
		record.ID, record.EventID, record.SessionID, record.Owner, record.Domain,
		record.FileCount, record.Flatten, record.SyncWithAsbplayerID, objectKeys, record.CreatedAt,
	).Scan(&record.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, observe("create_sync_record", nil)
	}
	if err != nil {
		return false, observe("create_sync_record", fmt.Errorf("failed to create sync record: %w", err))
	}

	return true, observe("create_sync_record", nil)
}

// ListSyncRecords returns the most recent syncs of owner
func (r *Repository) ListSyncRecords(ctx context.Context, owner string, limit int) ([]*models.SyncRecord, error) {
	query := `
		SELECT id, COALESCE(event_id, ''), session_id, owner, domain, file_count, flatten,
		       sync_with_asbplayer_id, object_keys, created_at
		FROM sync_history
		WHERE owner = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, owner, limit)
	if err != nil {
		return nil, observe("list_sync_records", fmt.Errorf("failed to list sync records: %w", err))
	}
	defer rows.Close()

	var records []*models.SyncRecord
	for rows.Next() {
		var record models.SyncRecord
		err := rows.Scan(
			&record.ID, &record.EventID, &record.SessionID, &record.Owner, &record.Domain,
			&record.FileCount, &record.Flatten, &record.SyncWithAsbplayerID, &record.ObjectKeys,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		records = append(records, &record)
	}

	return records, observe("list_sync_records", rows.Err())
}
