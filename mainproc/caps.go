package mainproc

// Bulk caps bound how much work one cooperative sweep does, so a pathological
// mapping set (or a storm of control events) can never make the main-thread
// sweep run unbounded.
const (
	MaxControlEventsPerSweep  = 1000
	MaxFeedbackEmitsPerSweep  = 1000
	MaxActivationEvalsPerSweep = 500
	MaxPollEvalsPerSweep      = 1000
	MaxUnusedSourceFlushes    = 1000

	// HitInstructionCap bounds the hit-instruction cascade
	// (enable/disable/refresh group): exactly one extra pass, never recursive.
	HitInstructionCap = 1
)
