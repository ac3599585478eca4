// Package api exposes the HTTP and WebSocket surface: chat turns, goals,
// trace feedback, notifications, background tasks, and the push channel.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kaziai/kazi/pkg/config"
	"github.com/kaziai/kazi/pkg/database"
	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/metrics"
	"github.com/kaziai/kazi/pkg/models"
	"github.com/kaziai/kazi/pkg/orchestrator"
)

// TurnRunner drives one chat turn end to end.
type TurnRunner interface {
	RunTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
	CancelTurn(userID, conversationID string)
}

// GoalRunner executes goals step-at-a-time or autonomously.
type GoalRunner interface {
	CreateGoal(ctx context.Context, userID, objective string) (*models.Goal, []models.Step, error)
	ExecuteStep(ctx context.Context, userID, goalID string) (*models.Step, error)
	AutoExecute(ctx context.Context, userID, goalID string) error
	CancelGoal(goalID string)
}

// GoalReader serves goal read endpoints.
type GoalReader interface {
	GetGoal(ctx context.Context, goalID string) (*models.Goal, []models.Step, error)
	ListGoals(ctx context.Context, userID string) ([]models.Goal, error)
}

// ConversationReader serves conversation read endpoints.
type ConversationReader interface {
	Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error)
	List(ctx context.Context, userID string, limit int) ([]models.Conversation, error)
	History(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

// TraceStore serves trace reads and feedback writes.
type TraceStore interface {
	Get(ctx context.Context, userID, traceID string) (*models.Trace, error)
	SetFeedback(ctx context.Context, userID, traceID string, rating models.FeedbackRating) error
}

// NotificationStore serves notification reads and the read flag.
type NotificationStore interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

// TaskRunReader lists a user's background task runs.
type TaskRunReader interface {
	List(ctx context.Context, userID string, limit int) ([]models.TaskRun, error)
}

// Researcher triggers the on-demand company research task and cancels
// in-flight task runs.
type Researcher interface {
	RunCompanyResearch(ctx context.Context, userID, company string) (*models.TaskRun, error)
	CancelTask(userID, runID string) bool
}

// Deps collects everything the server serves.
type Deps struct {
	DB            *database.Client
	Turns         TurnRunner
	Goals         GoalRunner
	GoalReader    GoalReader
	Conversations ConversationReader
	Traces        TraceStore
	Notifications NotificationStore
	TaskRuns      TaskRunReader
	Research      Researcher
	Hub           *events.Hub
}

// Server is the HTTP API server.
type Server struct {
	cfg  *config.Config
	deps Deps
	auth *Verifier
	http *http.Server
}

// NewServer creates an API server around the given dependencies. The
// JWT secret authenticates both HTTP requests and push subscriptions.
func NewServer(cfg *config.Config, jwtSecret string, deps Deps) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		auth: NewVerifier(jwtSecret),
	}
}

// Handler builds the router with all routes registered.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.healthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", s.websocketHandler)

	v1 := router.Group("/api/v1", s.authRequired())
	{
		v1.POST("/chat/turns", s.runTurnHandler)
		v1.POST("/chat/cancel", s.cancelTurnHandler)

		v1.GET("/conversations", s.listConversationsHandler)
		v1.GET("/conversations/:id/messages", s.conversationHistoryHandler)

		v1.POST("/goals", s.createGoalHandler)
		v1.GET("/goals", s.listGoalsHandler)
		v1.GET("/goals/:id", s.getGoalHandler)
		v1.POST("/goals/:id/execute_step", s.executeStepHandler)
		v1.POST("/goals/:id/auto_execute", s.autoExecuteHandler)
		v1.POST("/goals/:id/cancel", s.cancelGoalHandler)

		v1.GET("/traces/:id", s.getTraceHandler)
		v1.POST("/traces/:id/feedback", s.submitFeedbackHandler)

		v1.GET("/notifications", s.listNotificationsHandler)
		v1.POST("/notifications/:id/read", s.markNotificationReadHandler)

		v1.GET("/tasks", s.listTaskRunsHandler)
		v1.POST("/tasks/company_research", s.companyResearchHandler)
		v1.POST("/tasks/:id/cancel", s.cancelTaskHandler)
	}

	return router
}

// Start listens on addr and serves until Shutdown. Blocks.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// healthHandler reports liveness, including database health when a
// database is wired.
func (s *Server) healthHandler(c *gin.Context) {
	if s.deps.DB == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.deps.DB.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
	})
}
