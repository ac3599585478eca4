package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// listNotificationsHandler handles GET /api/v1/notifications.
// ?unread=true filters to unread notifications.
func (s *Server) listNotificationsHandler(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	limit := parseLimit(c.Query("limit"))

	notifications, err := s.deps.Notifications.List(c.Request.Context(), currentUser(c), unreadOnly, limit)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// markNotificationReadHandler handles POST /api/v1/notifications/:id/read.
// Read is one-way; marking an already-read notification is a no-op.
func (s *Server) markNotificationReadHandler(c *gin.Context) {
	err := s.deps.Notifications.MarkRead(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// parseLimit parses a ?limit query value; 0 lets the store apply its
// default.
func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
