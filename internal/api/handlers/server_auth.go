package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "halcyon.studio/cinema/internal/pkg/errors"
)

// GetCSRFToken handles GET /csrf. The token is bound to the session user
// and must accompany every state-changing request.
func (s *Server) GetCSRFToken(c *gin.Context) {
	if s.csrf == nil {
		_ = c.Error(apperrors.ServiceUnavailable(apperrors.CodeCSRFInvalid, "CSRF protection is disabled"))
		return
	}
	token, expiresAt := s.csrf.Issue(userFromCtx(c))
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}
