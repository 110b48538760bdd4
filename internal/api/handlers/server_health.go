package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"halcyon.studio/cinema/internal/provider"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
)

// GetHealth handles GET /health. The service reports ok while it can
// serve requests; an unreachable database or upstream only degrades it.
func (s *Server) GetHealth(c *gin.Context) {
	status := healthStatusOK
	body := gin.H{}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := s.db.Ping(ctx)
		cancel()
		if err != nil {
			body["database"] = "error"
			status = healthStatusDegraded
		} else {
			body["database"] = "ok"
		}
	}

	upstreams := []provider.UpstreamHealth{}
	if s.health != nil {
		upstreams = append(upstreams, s.health.Snapshot()...)
	}
	for _, u := range upstreams {
		if u.Status == provider.UpstreamUnhealthy || u.Status == provider.UpstreamUnreachable {
			status = healthStatusDegraded
		}
	}
	body["upstreams"] = upstreams

	if s.pools != nil {
		body["pools"] = s.pools.Metrics()
	}
	body["status"] = status
	c.JSON(http.StatusOK, body)
}
