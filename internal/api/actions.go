package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/internal/queue"
	"github.com/syncwavelabs/syncwave/pkg/snowflake"
)

func (r *Router) EnqueueAction(c *gin.Context) {
	var in queue.EnqueueInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := r.queueSvc.Enqueue(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, a)
}

func (r *Router) ListActions(c *gin.Context) {
	status := action.Status(c.Query("status"))
	switch status {
	case "", action.StatusPending, action.StatusInFlight, action.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	actions, err := r.queueSvc.Snapshot(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

const statsCacheKey = "queue_stats"

func (r *Router) GetStats(c *gin.Context) {
	if cached, ok := r.statsCache.Get(statsCacheKey); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	stats, err := r.queueSvc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	r.statsCache.Set(statsCacheKey, stats)
	c.JSON(http.StatusOK, stats)
}

func (r *Router) DiscardAction(c *gin.Context) {
	id, err := snowflake.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action id"})
		return
	}

	if err := r.queueSvc.Discard(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func (r *Router) RetryAction(c *gin.Context) {
	id, err := snowflake.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action id"})
		return
	}

	if err := r.queueSvc.Retry(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, action.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "action not found"})
		case errors.Is(err, action.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": "only failed actions can be retried"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusAccepted)
}
