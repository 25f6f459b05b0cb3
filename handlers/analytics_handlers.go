// api/handlers/analytics_handlers.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"questmetrics/api/engine"
	"questmetrics/api/models"
	"questmetrics/api/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AnalyticsHandlers exposes event ingestion and the analysis endpoints.
// Each analysis call loads a materialized session batch for the requested
// date range, runs the engine synchronously and returns the full result;
// recent identical requests are served from the report cache.
type AnalyticsHandlers struct {
	Events *store.EventStore
	Cache  *store.ReportCache
}

func NewAnalyticsHandlers(events *store.EventStore, cache *store.ReportCache) *AnalyticsHandlers {
	return &AnalyticsHandlers{Events: events, Cache: cache}
}

// TrackRequest is one tracker batch: the session it belongs to and its
// ordered events.
type TrackRequest struct {
	SessionID string               `json:"sessionId" binding:"required"`
	Events    []models.EventRecord `json:"events" binding:"required"`
}

// AnalysisRequest is the body shared by the analysis endpoints.
type AnalysisRequest struct {
	Funnel   []models.FunnelStep `json:"funnel"`
	Settings models.Settings     `json:"settings"`
}

func (h *AnalyticsHandlers) TrackEvents(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("error binding incoming track batch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Events) == 0 {
		c.Status(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.Events.InsertEvents(ctx, req.SessionID, req.Events); err != nil {
		log.Error().Err(err).Msg("error inserting game events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record events"})
		return
	}
	c.Status(http.StatusOK)
}

// runAnalysis is the shared skeleton of the POST analysis endpoints:
// cache lookup on the raw body, session batch load, compute, cache fill.
func (h *AnalyticsHandlers) runAnalysis(c *gin.Context, route string, compute func(req AnalysisRequest, sessions []models.Session) any) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	key := h.Cache.Key(route, body)
	if payload, ok := h.Cache.Get(c.Request.Context(), key); ok {
		c.Data(http.StatusOK, "application/json", payload)
		return
	}

	var req AnalysisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	start, end := dateRange(req.Settings)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	sessions, err := h.Events.LoadSessions(ctx, start, end, req.Settings.HiddenEventIDs)
	if err != nil {
		log.Error().Err(err).Str("route", route).Msg("error loading session batch")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sessions"})
		return
	}
	if req.Settings.MaxStep > 0 {
		for i := range sessions {
			if len(sessions[i].Events) > req.Settings.MaxStep {
				sessions[i].Events = sessions[i].Events[:req.Settings.MaxStep]
			}
		}
	}

	result := compute(req, sessions)
	payload, err := json.Marshal(result)
	if err != nil {
		log.Error().Err(err).Str("route", route).Msg("error encoding analysis result")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode result"})
		return
	}
	h.Cache.Set(c.Request.Context(), key, payload)
	c.Data(http.StatusOK, "application/json", payload)
}

// BuildTree returns the merged behavior tree for the sessions selected by
// the funnel under the requested view mode.
func (h *AnalyticsHandlers) BuildTree(c *gin.Context) {
	h.runAnalysis(c, "tree", func(req AnalysisRequest, sessions []models.Session) any {
		matcher := matcherFor(req.Settings)
		mode := engine.ParseMode(req.Settings.ViewMode)

		var selected []models.Session
		for _, s := range sessions {
			if matcher.Matches(s, req.Funnel, mode) {
				selected = append(selected, s)
			}
		}

		root := engine.NewTreeBuilder(nil).Build(selected)
		root = engine.Prune(root, req.Settings.MinPlayersSharePercent)
		return gin.H{
			"tree":          root,
			"sessionCount":  len(selected),
			"totalSessions": len(sessions),
		}
	})
}

// AnalyzeChurn returns the churn report with its companion property
// impact, value distribution and feature importance reports.
func (h *AnalyticsHandlers) AnalyzeChurn(c *gin.Context) {
	h.runAnalysis(c, "churn", func(req AnalysisRequest, sessions []models.Session) any {
		analyzer := engine.ChurnAnalyzer{Matcher: matcherFor(req.Settings)}
		props := engine.DiscoverProperties(sessions)
		return gin.H{
			"report":            analyzer.Analyze(sessions, req.Funnel),
			"propertyImpact":    analyzer.PropertyImpact(sessions, req.Funnel, props),
			"distributions":     analyzer.ValueDistributions(sessions, req.Funnel, props),
			"featureImportance": analyzer.FeatureImportance(sessions, req.Funnel, props),
		}
	})
}

// Correlate splits the batch into converted and dropped-off cohorts and
// returns the presence-correlation map.
func (h *AnalyticsHandlers) Correlate(c *gin.Context) {
	h.runAnalysis(c, "correlation", func(req AnalysisRequest, sessions []models.Session) any {
		matcher := matcherFor(req.Settings)
		var converted, churned []models.Session
		for _, s := range sessions {
			switch {
			case matcher.Matches(s, req.Funnel, engine.ModeConversion):
				converted = append(converted, s)
			case matcher.Matches(s, req.Funnel, engine.ModeDropoff):
				churned = append(churned, s)
			}
		}
		return gin.H{
			"correlation":    engine.Correlate(converted, churned),
			"convertedCount": len(converted),
			"churnedCount":   len(churned),
		}
	})
}

// DiscoverProperties scans the date range and returns the dynamic field
// descriptors the filter builder needs.
func (h *AnalyticsHandlers) DiscoverProperties(c *gin.Context) {
	start, end, err := queryDateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	sessions, err := h.Events.LoadSessions(ctx, start, end, nil)
	if err != nil {
		log.Error().Err(err).Msg("error loading session batch for property discovery")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"properties":   engine.DiscoverProperties(sessions),
		"sessionCount": len(sessions),
	})
}

func matcherFor(settings models.Settings) engine.Matcher {
	return engine.Matcher{
		MaxSessionLength: time.Duration(settings.MaxSessionLengthSeconds * float64(time.Second)),
	}
}

// dateRange defaults to the last seven days when the dashboard sends no
// explicit range.
func dateRange(settings models.Settings) (time.Time, time.Time) {
	start, end := settings.From, settings.To
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-7 * 24 * time.Hour)
	}
	return start, end
}

func queryDateRange(c *gin.Context) (time.Time, time.Time, error) {
	var settings models.Settings
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'start' timestamp format, use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
		settings.From = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'end' timestamp format, use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
		settings.To = t
	}
	start, end := dateRange(settings)
	return start, end, nil
}
