package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether the backing stores are reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler exposes liveness and worker queue depth.
type SystemHandler struct {
	rdb       *redis.Client
	checker   Pinger
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, checker Pinger, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		checker:   checker,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.checker.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

type queueStats struct {
	ProctorEvents int64  `json:"proctor_events"`
	Activity      int64  `json:"activity"`
	Goroutines    int    `json:"goroutines"`
	Uptime        string `json:"uptime"`
}

// QueueStats godoc
// GET /api/v1/admin/system/queues
// Reports the backlog of the background workers.
func (h *SystemHandler) QueueStats(c *gin.Context) {
	ctx := c.Request.Context()

	pipe := h.rdb.Pipeline()
	proctorCmd := pipe.LLen(ctx, config.WorkerKey.PersistProctorEventsQueue)
	activityCmd := pipe.LLen(ctx, config.WorkerKey.SessionActivityQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Error().Err(err).Msg("Queue length lookup failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, queueStats{
		ProctorEvents: proctorCmd.Val(),
		Activity:      activityCmd.Val(),
		Goroutines:    runtime.NumGoroutine(),
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
	})
}
