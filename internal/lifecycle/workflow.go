package lifecycle

import "github.com/linnemanlabs/pulse/internal/signal"

// workflowTotal is the number of steps on the type-agnostic progress bar.
const workflowTotal = 4

// WorkflowStage is a coarse, type-agnostic progress position.
type WorkflowStage struct {
	Stage int `json:"stage"`
	Total int `json:"total"`
}

var workflowStages = map[signal.Status]int{
	signal.StatusPending:          1,
	signal.StatusNeedsClarity:     1,
	signal.StatusApproved:         2,
	signal.StatusAutoApproved:     2,
	signal.StatusInMotion:         3,
	signal.StatusAwaitingSupplier: 3,
	signal.StatusDelivered:        4,
	signal.StatusClosed:           4,
}

// WorkflowStageFor maps status to its generic progress position. Spelling is
// matched leniently. Rejected and unknown statuses report stage 0.
func WorkflowStageFor(status signal.Status) WorkflowStage {
	st, ok := signal.LookupStatus(string(status))
	if !ok {
		return WorkflowStage{Total: workflowTotal}
	}
	return WorkflowStage{Stage: workflowStages[st], Total: workflowTotal}
}
