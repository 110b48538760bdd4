package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/usecase"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetCredits handles GET /credits.
func (s *Server) GetCredits(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			_ = c.Error(apperrors.ErrValidationf("limit", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}
	summary, err := s.credits.Summary(c.Request.Context(), userFromCtx(c), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GrantCredits handles POST /admin/credits.
func (s *Server) GrantCredits(c *gin.Context) {
	var in usecase.GrantInput
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	balance, err := s.credits.Grant(c.Request.Context(), userFromCtx(c), in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":           in.UserID,
		"creditsRemaining": balance,
	})
}
