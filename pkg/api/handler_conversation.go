package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listConversationsHandler handles GET /api/v1/conversations.
func (s *Server) listConversationsHandler(c *gin.Context) {
	conversations, err := s.deps.Conversations.List(c.Request.Context(), currentUser(c), parseLimit(c.Query("limit")))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// conversationHistoryHandler handles GET /api/v1/conversations/:id/messages.
// Ownership is checked before any messages are read.
func (s *Server) conversationHistoryHandler(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := s.deps.Conversations.Get(c.Request.Context(), currentUser(c), conversationID); err != nil {
		mapServiceError(c, err)
		return
	}

	messages, err := s.deps.Conversations.History(c.Request.Context(), conversationID, parseLimit(c.Query("limit")))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
