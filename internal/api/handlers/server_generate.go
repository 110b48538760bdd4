package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/provider"
	"halcyon.studio/cinema/internal/usecase"
)

// GenerateImage handles POST /generate/image.
func (s *Server) GenerateImage(c *gin.Context) {
	var req provider.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	out, err := s.media.Image(c.Request.Context(), userFromCtx(c), req)
	s.writeMedia(c, out, err)
}

// GenerateMusic handles POST /generate/music. A prediction still running
// answers 202 with its ID; resume it via GET /predictions/:id.
func (s *Server) GenerateMusic(c *gin.Context) {
	var req provider.MusicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	out, err := s.media.Music(c.Request.Context(), userFromCtx(c), req)
	s.writeMedia(c, out, err)
}

// GenerateVoiceover handles POST /generate/voiceover.
func (s *Server) GenerateVoiceover(c *gin.Context) {
	var req provider.VoiceoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	out, err := s.media.Voiceover(c.Request.Context(), userFromCtx(c), req)
	s.writeMedia(c, out, err)
}

// ResumePrediction handles GET /predictions/:id?kind=&projectId=&sceneId=.
func (s *Server) ResumePrediction(c *gin.Context) {
	req := provider.ResumeRequest{
		PredictionID: c.Param("id"),
		Kind:         domain.MediaKind(c.Query("kind")),
		ProjectID:    c.Query("projectId"),
		SceneID:      c.Query("sceneId"),
	}
	out, err := s.media.Resume(c.Request.Context(), userFromCtx(c), req)
	s.writeMedia(c, out, err)
}

func (s *Server) writeMedia(c *gin.Context, out *usecase.MediaOutput, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	if out.Status == domain.OutcomePending {
		c.JSON(http.StatusAccepted, out)
		return
	}
	c.JSON(http.StatusOK, out)
}
