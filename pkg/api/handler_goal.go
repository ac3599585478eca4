package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/services"
)

// CreateGoalRequest is the body for POST /api/v1/goals.
type CreateGoalRequest struct {
	Objective string `json:"objective"`
}

// GoalResponse bundles a goal with its ordered steps.
type GoalResponse struct {
	Goal  *models.Goal  `json:"goal"`
	Steps []models.Step `json:"steps"`
}

// createGoalHandler handles POST /api/v1/goals: plans the objective and
// persists the goal with its initial step list.
func (s *Server) createGoalHandler(c *gin.Context) {
	var req CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Objective == "" {
		badRequest(c, "objective is required")
		return
	}

	g, steps, err := s.deps.Goals.CreateGoal(c.Request.Context(), currentUser(c), req.Objective)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, &GoalResponse{Goal: g, Steps: steps})
}

// listGoalsHandler handles GET /api/v1/goals.
func (s *Server) listGoalsHandler(c *gin.Context) {
	goals, err := s.deps.GoalReader.ListGoals(c.Request.Context(), currentUser(c))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

// getGoalHandler handles GET /api/v1/goals/:id.
func (s *Server) getGoalHandler(c *gin.Context) {
	g, steps, err := s.deps.GoalReader.GetGoal(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if g.UserID != currentUser(c) {
		mapServiceError(c, services.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, &GoalResponse{Goal: g, Steps: steps})
}

// executeStepHandler handles POST /api/v1/goals/:id/execute_step: runs
// the next pending step synchronously and returns its terminal state.
// Progress events stream over the push channel while it runs.
func (s *Server) executeStepHandler(c *gin.Context) {
	step, err := s.deps.Goals.ExecuteStep(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"step": step})
}

// autoExecuteHandler handles POST /api/v1/goals/:id/auto_execute: starts
// the autonomous run in the background and returns immediately. The run
// streams step and replan events until done or error.
func (s *Server) autoExecuteHandler(c *gin.Context) {
	userID := currentUser(c)
	goalID := c.Param("id")

	// Preconditions (unknown goal, wrong owner, already claimed) are
	// checked synchronously so the caller gets a meaningful status.
	g, _, err := s.deps.GoalReader.GetGoal(c.Request.Context(), goalID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if g.UserID != userID {
		mapServiceError(c, services.ErrNotFound)
		return
	}

	go func() {
		if err := s.deps.Goals.AutoExecute(context.Background(), userID, goalID); err != nil {
			slog.Error("Autonomous goal run failed", "goal_id", goalID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "running", "goal_id": goalID})
}

// cancelGoalHandler handles POST /api/v1/goals/:id/cancel.
func (s *Server) cancelGoalHandler(c *gin.Context) {
	s.deps.Goals.CancelGoal(c.Param("id"))
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}
