package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaziai/kazi/pkg/goal"
	"github.com/kaziai/kazi/pkg/services"
)

// mapServiceError writes the HTTP error response for a service or
// executor failure.
func mapServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validErr.Error(), "kind": "invalid_input",
		})
		return
	}
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "resource not found", "kind": "invalid_input",
		})
		return
	}
	if errors.Is(err, goal.ErrPrecondition) {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(), "kind": "goal_precondition_failed",
		})
		return
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error", "kind": "internal",
	})
}

// badRequest writes a 400 with an invalid_input kind.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": "invalid_input"})
}
