package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/orchestrator"
)

// RunTurnRequest is the body for POST /api/v1/chat/turns.
type RunTurnRequest struct {
	ConversationID string             `json:"conversation_id,omitempty"`
	Text           string             `json:"text"`
	Attachment     *models.Attachment `json:"attachment,omitempty"`
}

// RunTurnResponse reports where a completed turn's artifacts landed.
// Incremental progress is streamed over the push channel; this response
// is the durable summary once the turn terminates.
type RunTurnResponse struct {
	TurnID         string   `json:"turn_id"`
	ConversationID string   `json:"conversation_id"`
	TraceIDs       []string `json:"trace_ids"`
	Assistant      string   `json:"assistant"`
}

// runTurnHandler handles POST /api/v1/chat/turns.
func (s *Server) runTurnHandler(c *gin.Context) {
	var req RunTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Text == "" {
		badRequest(c, "text is required")
		return
	}
	if len(req.Text) > 100_000 {
		badRequest(c, "text exceeds maximum length of 100,000 characters")
		return
	}

	result, err := s.deps.Turns.RunTurn(c.Request.Context(), orchestrator.TurnRequest{
		UserID:         currentUser(c),
		ConversationID: req.ConversationID,
		Text:           req.Text,
		Attachment:     req.Attachment,
	})
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, &RunTurnResponse{
		TurnID:         result.TurnID,
		ConversationID: result.ConversationID,
		TraceIDs:       result.TraceIDs,
		Assistant:      result.Assistant,
	})
}

// CancelTurnRequest is the body for POST /api/v1/chat/cancel.
type CancelTurnRequest struct {
	ConversationID string `json:"conversation_id"`
}

// cancelTurnHandler handles POST /api/v1/chat/cancel. Cancellation is
// idempotent; cancelling an idle conversation is a no-op.
func (s *Server) cancelTurnHandler(c *gin.Context) {
	var req CancelTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.ConversationID == "" {
		badRequest(c, "conversation_id is required")
		return
	}

	s.deps.Turns.CancelTurn(currentUser(c), req.ConversationID)
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}
