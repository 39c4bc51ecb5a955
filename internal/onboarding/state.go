package onboarding

// Step is the workflow state of one onboarding interaction.
type Step string

// Workflow steps. Cancelled is reachable only from Selecting; once the
// connect loop starts, the batch runs to completion.
const (
	StepSelecting  Step = "selecting"
	StepConnecting Step = "connecting"
	StepComplete   Step = "complete"
	StepCancelled  Step = "cancelled"
)

// Terminal reports whether the step admits no further transitions.
func (s Step) Terminal() bool {
	return s == StepComplete || s == StepCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s Step) CanTransition(next Step) bool {
	switch s {
	case StepSelecting:
		return next == StepConnecting || next == StepCancelled
	case StepConnecting:
		return next == StepComplete
	default:
		return false
	}
}

// OutcomeStatus is the per-item result of the connect loop.
type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "pending"
	OutcomeConnected OutcomeStatus = "connected"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome records how one selected repository fared. Reason is set only
// when Status is failed. RepoDocID is the persisted repository document id
// for connected items.
type Outcome struct {
	ExternalID string        `json:"external_id"`
	FullName   string        `json:"full_name"`
	Status     OutcomeStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	RepoDocID  string        `json:"repo_doc_id,omitempty"`
}
