package domain

// RunStatus is the lifecycle status of a remote run
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// RunOutcome classifies a RunStatus for the polling loop
type RunOutcome int

const (
	// RunUnknown is a status this client does not recognise; polling continues
	RunUnknown RunOutcome = iota
	// RunPending is a non-terminal status
	RunPending
	// RunSucceeded means the reply can be fetched
	RunSucceeded
	// RunFailed is a terminal status without a usable reply
	RunFailed
)

// Classify maps the status onto a polling outcome.
// requires_action counts as failed: tool outputs are never submitted, so the
// run could only stall until it expires.
func (s RunStatus) Classify() RunOutcome {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		return RunPending
	case RunStatusCompleted:
		return RunSucceeded
	case RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete, RunStatusRequiresAction:
		return RunFailed
	default:
		return RunUnknown
	}
}

// IsTerminal reports whether the run will not change status any more
func (s RunStatus) IsTerminal() bool {
	o := s.Classify()
	return o == RunSucceeded || o == RunFailed
}

func (o RunOutcome) String() string {
	switch o {
	case RunPending:
		return "pending"
	case RunSucceeded:
		return "succeeded"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MessageRole represents the author of a thread message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)
