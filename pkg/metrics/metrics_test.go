package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(turnsTotal.WithLabelValues("completed"))
	RecordTurn("completed", 1.5)
	assert.Equal(t, before+1, testutil.ToFloat64(turnsTotal.WithLabelValues("completed")))

	before = testutil.ToFloat64(agentExecutions.WithLabelValues("scout", "complete"))
	RecordAgentExecution("scout", "complete")
	assert.Equal(t, before+1, testutil.ToFloat64(agentExecutions.WithLabelValues("scout", "complete")))

	before = testutil.ToFloat64(toolInvocations.WithLabelValues("search_jobs", "completed"))
	RecordToolInvocation("search_jobs", "completed", 0.02)
	assert.Equal(t, before+1, testutil.ToFloat64(toolInvocations.WithLabelValues("search_jobs", "completed")))
}

func TestSubscriptionGauge(t *testing.T) {
	before := testutil.ToFloat64(pushSubscriptions)
	SubscriptionOpened()
	SubscriptionOpened()
	SubscriptionClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(pushSubscriptions))
	SubscriptionClosed()
}

func TestHandlerServesTextFormat(t *testing.T) {
	RecordTurn("completed", 0.1)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "kazi_turns_total")
}
