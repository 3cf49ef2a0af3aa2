package drafter

import "time"

// Config holds configuration for the Drafter.
type Config struct {
	// Concurrency is the maximum number of nodes of one execution that run
	// at the same time. Zero or negative means unlimited.
	Concurrency int

	// NodeTimeout bounds a single node invocation when the node does not
	// declare its own timeout. Zero disables the default deadline.
	NodeTimeout time.Duration

	// CallTimeout bounds a single external model call.
	CallTimeout time.Duration

	// SuspendedTTL is how long a suspended execution's checkpoint is kept
	// waiting for a resume before the sweeper deletes it.
	SuspendedTTL time.Duration

	// FinishedTTL is how long checkpoints of completed or failed executions
	// are kept for inspection and stale-resume detection.
	FinishedTTL time.Duration

	// SweepSchedule is the cron expression for the retention sweeper.
	// Empty disables sweeping.
	SweepSchedule string

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     8,
		NodeTimeout:     5 * time.Minute,
		CallTimeout:     60 * time.Second,
		SuspendedTTL:    7 * 24 * time.Hour,
		FinishedTTL:     24 * time.Hour,
		SweepSchedule:   "@every 1h",
		ShutdownTimeout: 30 * time.Second,
	}
}
