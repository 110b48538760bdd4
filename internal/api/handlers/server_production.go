package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/usecase"
)

type produceEpisodeRequest struct {
	domain.ProductionRequest
	EstimateOnly bool `json:"estimateOnly"`
	Async        bool `json:"async"`
}

// ProduceEpisode handles POST /produce-episode. Synchronous runs answer
// 200 with the result, estimates answer 200 with the estimate, async
// runs answer 202 with the run ID.
func (s *Server) ProduceEpisode(c *gin.Context) {
	var body produceEpisodeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	body.UserID = userFromCtx(c)

	out, err := s.produce.Execute(c.Request.Context(), usecase.ProduceInput{
		Request:      body.ProductionRequest,
		EstimateOnly: body.EstimateOnly,
		Async:        body.Async,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	if out.RunID != "" {
		c.Header("Location", "/api/productions/"+out.RunID)
		c.JSON(http.StatusAccepted, out)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetProduction handles GET /productions/:id.
func (s *Server) GetProduction(c *gin.Context) {
	run, err := s.runs.Get(c.Request.Context(), userFromCtx(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// StreamProduction handles GET /productions/:id/events as server-sent
// events. A run executing in this process is streamed from its broker
// until the broker closes; otherwise the stored run is polled. The stream
// ends with a "done" event carrying the finished run.
func (s *Server) StreamProduction(c *gin.Context) {
	ctx := c.Request.Context()
	userID, runID := userFromCtx(c), c.Param("id")

	events, cancel, live, err := s.runs.Watch(ctx, userID, runID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	if live {
		defer cancel()
		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case p, ok := <-events:
				if !ok {
					s.sendDone(c, userID, runID)
					return false
				}
				c.SSEvent("progress", p)
				return true
			}
		})
		return
	}

	var last domain.Progress
	first := true
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		if !first {
			select {
			case <-ctx.Done():
				return false
			case <-ticker.C:
			}
		}
		run, err := s.runs.Get(ctx, userID, runID)
		if err != nil {
			c.SSEvent("error", errorEvent(err))
			return false
		}
		if first || run.Progress != last {
			c.SSEvent("progress", run.Progress)
			last, first = run.Progress, false
		}
		if run.Status == domain.RunComplete || run.Status == domain.RunFailed {
			c.SSEvent("done", run)
			return false
		}
		return true
	})
}

func (s *Server) sendDone(c *gin.Context, userID, runID string) {
	run, err := s.runs.Get(c.Request.Context(), userID, runID)
	if err != nil {
		logger.Warn("production stream: final lookup failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	c.SSEvent("done", run)
}

func errorEvent(err error) gin.H {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return gin.H{"code": appErr.Code, "message": appErr.Message}
	}
	return gin.H{"code": apperrors.CodeInternal, "message": "stream failed"}
}

// ListProfiles handles GET /profiles.
func (s *Server) ListProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": s.catalog.List()})
}

func bindError(err error) *apperrors.AppError {
	return apperrors.Wrap(err, apperrors.CodeInvalidRequestField, "request body is not valid JSON for this endpoint", http.StatusBadRequest)
}
