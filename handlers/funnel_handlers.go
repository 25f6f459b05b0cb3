// api/handlers/funnel_handlers.go
package handlers

import (
	"errors"
	"net/http"

	"questmetrics/api/models"
	"questmetrics/api/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type FunnelHandlers struct {
	Funnels *store.FunnelStore
}

func NewFunnelHandlers(funnels *store.FunnelStore) *FunnelHandlers {
	return &FunnelHandlers{Funnels: funnels}
}

type createFunnelRequest struct {
	Name  string              `json:"name" binding:"required"`
	Steps []models.FunnelStep `json:"steps" binding:"required"`
}

func (h *FunnelHandlers) CreateFunnel(c *gin.Context) {
	var req createFunnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	for _, step := range req.Steps {
		if step.EventID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Every funnel step needs an event id"})
			return
		}
	}

	funnel, err := h.Funnels.CreateFunnel(c.Request.Context(), req.Name, req.Steps)
	if err != nil {
		log.Error().Err(err).Str("name", req.Name).Msg("error creating funnel")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save funnel"})
		return
	}
	c.JSON(http.StatusCreated, funnel)
}

func (h *FunnelHandlers) GetFunnel(c *gin.Context) {
	funnel, err := h.Funnels.GetFunnel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrFunnelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Funnel not found"})
			return
		}
		log.Error().Err(err).Str("id", c.Param("id")).Msg("error loading funnel")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load funnel"})
		return
	}
	c.JSON(http.StatusOK, funnel)
}

func (h *FunnelHandlers) ListFunnels(c *gin.Context) {
	funnels, err := h.Funnels.ListFunnels(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("error listing funnels")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list funnels"})
		return
	}
	c.JSON(http.StatusOK, funnels)
}

func (h *FunnelHandlers) DeleteFunnel(c *gin.Context) {
	if err := h.Funnels.DeleteFunnel(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrFunnelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Funnel not found"})
			return
		}
		log.Error().Err(err).Str("id", c.Param("id")).Msg("error deleting funnel")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete funnel"})
		return
	}
	c.Status(http.StatusNoContent)
}
