package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaziai/kazi/pkg/models"
)

// Store behavior against a live database belongs to an integration suite;
// these tests cover the parts that run before any SQL is issued.

func TestAdvisoryKeyStableAndDistinct(t *testing.T) {
	a := advisoryKey("conv-a")
	b := advisoryKey("conv-b")

	assert.Equal(t, a, advisoryKey("conv-a"))
	assert.NotEqual(t, a, b)
}

func TestConversationServiceValidation(t *testing.T) {
	s := &ConversationService{}

	_, _, err := s.Ensure(context.Background(), "", "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = s.AppendMessage(context.Background(), models.AddMessageRequest{})
	assert.True(t, IsValidationError(err))

	_, err = s.AppendMessage(context.Background(), models.AddMessageRequest{
		ConversationID: "c", Role: models.RoleUser,
	})
	assert.True(t, IsValidationError(err))
}

func TestTraceServiceValidation(t *testing.T) {
	s := &TraceService{}

	_, err := s.Create(context.Background(), models.CreateTraceRequest{})
	assert.True(t, IsValidationError(err))

	_, err = s.Create(context.Background(), models.CreateTraceRequest{UserID: "u"})
	assert.True(t, IsValidationError(err))

	err = s.SetFeedback(context.Background(), "u", "t", "meh")
	assert.True(t, IsValidationError(err))
}

func TestGoalServiceValidation(t *testing.T) {
	s := &GoalService{}

	_, _, err := s.CreateGoal(context.Background(), "", "t", "", nil)
	assert.True(t, IsValidationError(err))

	_, _, err = s.CreateGoal(context.Background(), "u", "", "", nil)
	assert.True(t, IsValidationError(err))

	_, _, err = s.CreateGoal(context.Background(), "u", "t", "", nil)
	assert.True(t, IsValidationError(err))
}

func TestNotificationServiceValidation(t *testing.T) {
	s := &NotificationService{}

	_, err := s.Create(context.Background(), models.CreateNotificationRequest{})
	assert.True(t, IsValidationError(err))

	_, err = s.Create(context.Background(), models.CreateNotificationRequest{UserID: "u", Type: "x"})
	assert.True(t, IsValidationError(err))
}

func TestTaskRunServiceValidation(t *testing.T) {
	s := &TaskRunService{}

	_, err := s.Create(context.Background(), models.CreateTaskRunRequest{})
	assert.True(t, IsValidationError(err))

	err = s.Finish(context.Background(), "id", models.TaskStatusRunning, "")
	assert.True(t, IsValidationError(err))
}

func TestValidationErrorHelpers(t *testing.T) {
	err := NewValidationError("field", "required")
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "field")
	assert.False(t, IsValidationError(ErrNotFound))
}
