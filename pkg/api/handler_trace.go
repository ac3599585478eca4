package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaziai/kazi/pkg/models"
)

// getTraceHandler handles GET /api/v1/traces/:id.
func (s *Server) getTraceHandler(c *gin.Context) {
	trace, err := s.deps.Traces.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, trace)
}

// SubmitFeedbackRequest is the body for POST /api/v1/traces/:id/feedback.
type SubmitFeedbackRequest struct {
	Rating string `json:"rating"`
}

// submitFeedbackHandler handles POST /api/v1/traces/:id/feedback.
// First write wins; repeat submissions are accepted without overwriting.
func (s *Server) submitFeedbackHandler(c *gin.Context) {
	var req SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	err := s.deps.Traces.SetFeedback(c.Request.Context(), currentUser(c),
		c.Param("id"), models.FeedbackRating(req.Rating))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
