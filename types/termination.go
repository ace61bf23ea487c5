package types

// StopReason says why a conversation ended.
type StopReason string

const (
	StopMaxTurns             StopReason = "max_turns"
	StopTerminationKeyword   StopReason = "termination_keyword"
	StopGoalReached          StopReason = "goal_reached"
	StopInsufficientProgress StopReason = "insufficient_progress"
	StopUserRequested        StopReason = "user_requested"
)

// TerminationResult is the immutable verdict that ends a conversation.
// Exactly one is produced per conversation; its presence marks the
// conversation done.
type TerminationResult struct {
	Reason      StopReason `json:"reason"`
	Explanation string     `json:"explanation,omitempty"`
}
