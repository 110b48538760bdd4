// Package handlers implements the HTTP handlers of the production API.
//
// Handlers bind and shape requests; every decision is delegated to a use
// case. Errors are attached with c.Error and rendered by
// middleware.ErrorHandler. Route registration lives in internal/app.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"halcyon.studio/cinema/internal/api/middleware"
	"halcyon.studio/cinema/internal/production"
	"halcyon.studio/cinema/internal/provider"
	"halcyon.studio/cinema/internal/pkg/worker"
	"halcyon.studio/cinema/internal/usecase"
)

// DefaultStreamPollInterval paces SSE updates for runs executing in
// another process.
const DefaultStreamPollInterval = 2 * time.Second

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	produce      *usecase.ProduceEpisodeUseCase
	runs         *usecase.ProductionRuns
	media        *usecase.GenerateMediaUseCase
	credits      *usecase.CreditsUseCase
	catalog      *production.Catalog
	csrf         *middleware.CSRF
	health       *provider.HealthChecker
	pools        *worker.Pools
	db           Pinger
	pollInterval time.Duration
}

// ServerDeps holds all dependencies for creating a Server.
// Health, Pools and DB are optional.
type ServerDeps struct {
	Produce  *usecase.ProduceEpisodeUseCase
	Runs     *usecase.ProductionRuns
	Media    *usecase.GenerateMediaUseCase
	Credits  *usecase.CreditsUseCase
	Catalog  *production.Catalog
	CSRF     *middleware.CSRF
	Health   *provider.HealthChecker
	Pools    *worker.Pools
	DB       Pinger

	// StreamPollInterval defaults to DefaultStreamPollInterval.
	StreamPollInterval time.Duration
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	poll := deps.StreamPollInterval
	if poll <= 0 {
		poll = DefaultStreamPollInterval
	}
	return &Server{
		produce:      deps.Produce,
		runs:         deps.Runs,
		media:        deps.Media,
		credits:      deps.Credits,
		catalog:      deps.Catalog,
		csrf:         deps.CSRF,
		health:       deps.Health,
		pools:        deps.Pools,
		db:           deps.DB,
		pollInterval: poll,
	}
}

// userFromCtx returns the authenticated user ID set by JWTAuth.
func userFromCtx(c *gin.Context) string {
	return middleware.GetUserID(c.Request.Context())
}
