package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/syncwavelabs/syncwave/internal/version"
)

func (r *Router) ListVersions(c *gin.Context) {
	versions, err := r.registry.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

type createVersionRequest struct {
	Version         string  `json:"version" binding:"required"`
	Status          string  `json:"status"`
	ReleaseNotes    *string `json:"release_notes"`
	BreakingChanges bool    `json:"breaking_changes"`
}

func (r *Router) CreateVersion(c *gin.Context) {
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := req.Status
	if status == "" {
		status = version.StatusStable
	}

	v := &version.EngineVersion{
		Version:         req.Version,
		Status:          status,
		ReleaseDate:     time.Now().UTC(),
		ReleaseNotes:    req.ReleaseNotes,
		BreakingChanges: req.BreakingChanges,
	}
	if err := r.registry.Create(c.Request.Context(), v); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, v)
}

type setDefaultRequest struct {
	Version string `json:"version" binding:"required"`
}

func (r *Router) SetDefaultVersion(c *gin.Context) {
	var req setDefaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := r.registry.SetDefault(c.Request.Context(), req.Version); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func (r *Router) ActivateUpdate(c *gin.Context) {
	adopted, err := r.notifier.ActivateUpdate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"version": adopted})
}
