package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaziai/kazi/pkg/services"
)

// listTaskRunsHandler handles GET /api/v1/tasks.
func (s *Server) listTaskRunsHandler(c *gin.Context) {
	runs, err := s.deps.TaskRuns.List(c.Request.Context(), currentUser(c), parseLimit(c.Query("limit")))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": runs})
}

// CompanyResearchRequest is the body for POST /api/v1/tasks/company_research.
type CompanyResearchRequest struct {
	Company string `json:"company"`
}

// companyResearchHandler handles POST /api/v1/tasks/company_research:
// runs the on-demand research task and returns the recorded run.
func (s *Server) companyResearchHandler(c *gin.Context) {
	var req CompanyResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Company == "" {
		badRequest(c, "company is required")
		return
	}

	run, err := s.deps.Research.RunCompanyResearch(c.Request.Context(), currentUser(c), req.Company)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task": run})
}

// cancelTaskHandler handles POST /api/v1/tasks/:id/cancel. Only in-flight
// runs owned by the caller can be cancelled.
func (s *Server) cancelTaskHandler(c *gin.Context) {
	runID := c.Param("id")
	if !s.deps.Research.CancelTask(currentUser(c), runID) {
		mapServiceError(c, services.ErrNotFound)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": runID, "status": "cancelling"})
}
