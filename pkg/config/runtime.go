package config

import "time"

// OrchestratorConfig controls turn execution budgets and router behavior.
type OrchestratorConfig struct {
	// TurnBudget is the wall-clock limit for one full turn.
	TurnBudget time.Duration `yaml:"turn_budget"`

	// RouterHistory is how many trailing messages the router sees.
	RouterHistory int `yaml:"router_history"`

	// RouterConfidenceThreshold below which the router answers directly
	// instead of dispatching agents.
	RouterConfidenceThreshold float64 `yaml:"router_confidence_threshold"`

	// MaxToolRounds is the default reason/act/observe cap per agent.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// ToolTimeout bounds a single tool invocation (retried once on timeout).
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// FailureApologyRatio: when at least this fraction of agents failed,
	// synthesis produces an apology instead of a confident answer.
	FailureApologyRatio float64 `yaml:"failure_apology_ratio"`
}

// DefaultOrchestratorConfig returns the built-in orchestrator defaults.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		TurnBudget:                120 * time.Second,
		RouterHistory:             6,
		RouterConfidenceThreshold: 0.5,
		MaxToolRounds:             3,
		ToolTimeout:               30 * time.Second,
		FailureApologyRatio:       0.5,
	}
}

// NegotiationConfig controls the debate phase between diverging agents.
type NegotiationConfig struct {
	// MaxRounds bounds the debate length.
	MaxRounds int `yaml:"max_rounds"`

	// ConfidenceSpread above which two reports count as diverging.
	ConfidenceSpread float64 `yaml:"confidence_spread"`

	// ConsensusConfidence is the mean confidence required for consensus.
	ConsensusConfidence float64 `yaml:"consensus_confidence"`
}

// DefaultNegotiationConfig returns the built-in negotiation defaults.
func DefaultNegotiationConfig() *NegotiationConfig {
	return &NegotiationConfig{
		MaxRounds:           3,
		ConfidenceSpread:    0.3,
		ConsensusConfidence: 0.7,
	}
}

// GoalConfig controls goal planning and autonomous execution.
type GoalConfig struct {
	// StepRetryBudget is how many times a failed step is retried before
	// the autonomous run pauses the goal.
	StepRetryBudget int `yaml:"step_retry_budget"`

	// MaxTotalSteps caps a plan including dynamically added steps.
	MaxTotalSteps int `yaml:"max_total_steps"`

	// MinSteps / MaxSteps bound the planner's decomposition.
	MinSteps int `yaml:"min_steps"`
	MaxSteps int `yaml:"max_steps"`
}

// DefaultGoalConfig returns the built-in goal defaults.
func DefaultGoalConfig() *GoalConfig {
	return &GoalConfig{
		StepRetryBudget: 1,
		MaxTotalSteps:   10,
		MinSteps:        3,
		MaxSteps:        6,
	}
}

// TaskConfig controls the background task runner schedules.
type TaskConfig struct {
	// JobMonitorSchedule is a cron expression for the job-match scanner.
	JobMonitorSchedule string `yaml:"job_monitor_schedule"`

	// AppReminderSchedule is a cron expression for the application-status
	// reminder (also covers stalled-goal detection).
	AppReminderSchedule string `yaml:"app_reminder_schedule"`

	// StalledGoalThreshold is how long a goal may sit without progress
	// before a notification is raised.
	StalledGoalThreshold time.Duration `yaml:"stalled_goal_threshold"`

	// StaleApplicationThreshold is how long an application may sit in
	// "applied" before a reminder is raised.
	StaleApplicationThreshold time.Duration `yaml:"stale_application_threshold"`
}

// DefaultTaskConfig returns the built-in task defaults.
func DefaultTaskConfig() *TaskConfig {
	return &TaskConfig{
		JobMonitorSchedule:        "0 * * * *",   // hourly
		AppReminderSchedule:       "0 */12 * * *", // every 12h
		StalledGoalThreshold:      24 * time.Hour,
		StaleApplicationThreshold: 7 * 24 * time.Hour,
	}
}

// PushConfig controls the per-user push fabric.
type PushConfig struct {
	// QueueSize bounds pending events per subscription; overflow
	// disconnects the subscriber.
	QueueSize int `yaml:"queue_size"`

	// HeartbeatInterval is the expected client ping cadence. Idle longer
	// than 2× this closes the subscription.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// AuthGrace is how long an unauthenticated connection may live.
	AuthGrace time.Duration `yaml:"auth_grace"`

	// WriteTimeout bounds a single transport write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// AllowedOrigins for the WebSocket upgrade.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// JWTSecretEnv names the environment variable holding the HMAC secret
	// used to verify subscription auth proofs.
	JWTSecretEnv string `yaml:"jwt_secret_env"`
}

// DefaultPushConfig returns the built-in push defaults.
func DefaultPushConfig() *PushConfig {
	return &PushConfig{
		QueueSize:         256,
		HeartbeatInterval: 30 * time.Second,
		AuthGrace:         10 * time.Second,
		WriteTimeout:      5 * time.Second,
		JWTSecretEnv:      "KAZI_JWT_SECRET",
	}
}

// RetentionConfig controls the periodic data retention sweep.
type RetentionConfig struct {
	// TaskRunRetention is how long terminal task runs are kept.
	TaskRunRetention time.Duration `yaml:"task_run_retention"`

	// NotificationRetention is how long read notifications are kept.
	// Unread notifications are never purged.
	NotificationRetention time.Duration `yaml:"notification_retention"`

	// SweepInterval is how often the retention sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		TaskRunRetention:      30 * 24 * time.Hour,
		NotificationRetention: 90 * 24 * time.Hour,
		SweepInterval:         time.Hour,
	}
}
