package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tokcache/internal/providers"
	"tokcache/internal/services"
)

const pingTimeout = 2 * time.Second

type HealthController struct {
	service   services.SyncServiceInterface
	logger    providers.Logger
	startTime time.Time
}

type healthResponse struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Store         string  `json:"store"`
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	uptime := time.Since(hc.startTime)
	resp := healthResponse{
		Status:        "ok",
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
		Store:         "ok",
	}

	status := http.StatusOK
	if err := hc.service.Ping(ctx); err != nil {
		hc.logger.Errorf(providers.TypeHTTP, "health check: store unreachable: %v", err)
		resp.Status = "degraded"
		resp.Store = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

func NewHealthController(service services.SyncServiceInterface, logger providers.Logger) *HealthController {
	return &HealthController{
		service:   service,
		logger:    logger,
		startTime: time.Now(),
	}
}
