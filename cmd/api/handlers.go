package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/subsync/internal/bridge"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/middleware"
	"github.com/therealutkarshpriyadarshi/subsync/internal/orchestrator"
	"github.com/therealutkarshpriyadarshi/subsync/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/subsync/internal/session"
	"github.com/therealutkarshpriyadarshi/subsync/internal/sites"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

const (
	maxLocalFileSize   = 20 << 20
	defaultHistorySize = 50
)

// SettingsStore persists user settings and reads the sync history
type SettingsStore interface {
	GetSettings(ctx context.Context, owner string) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
	SaveLanguagePreferences(ctx context.Context, owner string, prefs map[string][]string) error
	AddProfile(ctx context.Context, owner, name string) error
	RemoveProfile(ctx context.Context, owner, name string) error
	ListSyncRecords(ctx context.Context, owner string, limit int) ([]*models.SyncRecord, error)
}

// PageDataSource discovers the tracks of a page server side
type PageDataSource interface {
	VideoData(ctx context.Context, pageURL, apiKey string) *models.VideoData
}

type API struct {
	sessions   *session.Manager
	reaper     *scheduler.Reaper
	settings   SettingsStore
	pageData   PageDataSource
	catalog    *sites.Catalog
	checks     map[string]metrics.HealthCheck
	sessionTTL time.Duration
	logger     *logging.Logger
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	for name, check := range api.checks {
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  name + ": " + err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": api.sessions.Len(),
	})
}

// Sites

func (api *API) listSites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sites": api.catalog.Hosts()})
}

func (api *API) checkSite(c *gin.Context) {
	pageURL := c.Query("url")
	host, err := sites.NormalizeHost(pageURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page url"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"site":      host,
		"supported": api.catalog.Supports(pageURL),
	})
}

// Sessions

func (api *API) openSession(c *gin.Context) {
	var req struct {
		UserID  string `json:"user_id" binding:"required"`
		PageURL string `json:"page_url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := api.sessions.Open(c.Request.Context(), req.UserID, req.PageURL)
	if err != nil {
		api.logger.WithError(err).Warn("failed to open session")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := middleware.GenerateToken(req.UserID, s.ID, api.sessionTTL)
	if err != nil {
		api.sessions.Close(c.Request.Context(), s.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session token"})
		return
	}

	expiresAt := time.Now().Add(api.sessionTTL)
	if api.reaper != nil {
		api.reaper.Schedule(s.ID, expiresAt)
	}

	c.JSON(http.StatusCreated, gin.H{
		"session":    s.Snapshot(),
		"token":      token,
		"expires_at": expiresAt,
	})
}

// session returns the session of the path, writing a 404 when it is gone
func (api *API) session(c *gin.Context) (*session.Session, bool) {
	s, err := api.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return s, true
}

func (api *API) getSession(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (api *API) closeSession(c *gin.Context) {
	if api.reaper != nil {
		api.reaper.Cancel(c.Param("id"))
	}

	err := api.sessions.Close(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if err != nil {
		api.logger.WithError(err).WithSession(c.Param("id")).Warn("session closed with errors")
	}

	c.Status(http.StatusNoContent)
}

// streamEvents relays session events as server-sent events until the
// client disconnects or the session closes
func (api *API) streamEvents(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	events, cancel := s.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(event.Type, event)
			c.Writer.Flush()
		}
	}
}

func (api *API) reportPage(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	var report session.PageReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Report(report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func (api *API) requestSubtitles(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	err := s.RequestSubtitles(c.Request.Context())
	switch {
	case errors.Is(err, orchestrator.ErrNotVideoPage):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, s.Snapshot())
}

func (api *API) syncedData(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	var data models.VideoData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.SyncedData(c.Request.Context(), &data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.Snapshot())
}

func (api *API) handleCommand(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read command"})
		return
	}

	err = s.Command(c.Request.Context(), raw)
	switch {
	case errors.Is(err, bridge.ErrUnknownCommand):
		api.logger.WithSession(s.ID).WithError(err).Debug("ignoring unknown command")
		c.Status(http.StatusNoContent)
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.Snapshot())
}

func (api *API) respond(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || !json.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Response must be JSON"})
		return
	}

	if !s.Respond(c.Param("requestId"), raw) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pending request"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (api *API) showPicker(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	var req struct {
		Reason          models.OpenReason `json:"reason"`
		FromAsbplayerID string            `json:"from_asbplayer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = models.OpenReasonUserRequested
	}

	err := s.Show(c.Request.Context(), orchestrator.ShowOptions{
		Reason:          req.Reason,
		FromAsbplayerID: req.FromAsbplayerID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.Snapshot())
}

// registerFile stores a subtitle file picked by the user and returns the
// blob url a track can reference
func (api *API) registerFile(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No subtitle file provided"})
		return
	}
	if header.Size > maxLocalFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Subtitle file too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"name": header.Filename,
		"url":  s.RegisterFile(payload),
	})
}

func (api *API) getProgress(c *gin.Context) {
	s, ok := api.session(c)
	if !ok {
		return
	}

	progress, err := s.Progress(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// Settings

func (api *API) getSettings(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	settings, err := api.settings.GetSettings(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	c.JSON(http.StatusOK, settings)
}

func (api *API) updateSettings(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	ctx := c.Request.Context()

	var req struct {
		ThemeType           *string             `json:"theme_type"`
		ActiveProfile       *string             `json:"active_profile"`
		APIKey              *string             `json:"api_key"`
		AutoSync            *bool               `json:"auto_sync"`
		LanguagePreferences map[string][]string `json:"language_preferences"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := api.settings.GetSettings(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	if req.ThemeType != nil {
		settings.ThemeType = *req.ThemeType
	}
	if req.ActiveProfile != nil {
		settings.ActiveProfile = *req.ActiveProfile
	}
	if req.APIKey != nil {
		settings.APIKey = *req.APIKey
	}
	if req.AutoSync != nil {
		settings.AutoSync = *req.AutoSync
	}

	if err := api.settings.SaveSettings(ctx, settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}
	if req.LanguagePreferences != nil {
		if err := api.settings.SaveLanguagePreferences(ctx, userID, req.LanguagePreferences); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save language preferences"})
			return
		}
		settings.LanguagePreferences = req.LanguagePreferences
	}

	api.sessions.SettingsChanged(ctx, userID)
	c.JSON(http.StatusOK, settings)
}

func (api *API) addProfile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := api.settings.AddProfile(c.Request.Context(), userID, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add profile"})
		return
	}

	api.sessions.SettingsChanged(c.Request.Context(), userID)
	c.Status(http.StatusCreated)
}

func (api *API) removeProfile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	if err := api.settings.RemoveProfile(c.Request.Context(), userID, c.Param("name")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove profile"})
		return
	}

	api.sessions.SettingsChanged(c.Request.Context(), userID)
	c.Status(http.StatusNoContent)
}

func (api *API) listHistory(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	limit := defaultHistorySize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	records, err := api.settings.ListSyncRecords(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": records,
		"count":   len(records),
	})
}

// getPageData runs server side track discovery for a page without opening
// a session
func (api *API) getPageData(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	ctx := c.Request.Context()

	pageURL := c.Query("url")
	if !api.catalog.Supports(pageURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported site"})
		return
	}

	settings, err := api.settings.GetSettings(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	c.JSON(http.StatusOK, api.pageData.VideoData(ctx, pageURL, settings.APIKey))
}
