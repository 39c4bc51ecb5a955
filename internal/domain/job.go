package domain

import "time"

// Job is an analysis job created by the pipeline and observed read-only here.
type Job struct {
	ID           string     `json:"id"`
	JobType      string     `json:"job_type"`
	Status       string     `json:"status"`
	RepoID       string     `json:"repo_id"`
	RepoFullName string     `json:"repo_full_name"`
	PRNumber     int        `json:"pr_number,omitempty"`
	Error        string     `json:"error,omitempty"` // set only when Status is failed
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"` // set iff Status is terminal
}

// Job type constants.
const (
	JobTypeInitialIngestion = "initial-ingestion"
	JobTypePRAnalysis       = "pr-analysis"
	JobTypePushAnalysis     = "push-analysis"
	JobTypeDeltaAnalysis    = "delta-analysis"
)

// Job status constants. Status moves forward only:
// queued → dispatched → in-progress → completed|failed.
const (
	JobStatusQueued     = "queued"
	JobStatusDispatched = "dispatched"
	JobStatusInProgress = "in-progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// JobStatusTerminal reports whether a status admits no further transitions.
func JobStatusTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// JobResult holds the output of a completed job, tied 1:1 to a job. It is
// fetched on demand and never subscribed.
type JobResult struct {
	ID            string        `json:"id"`
	JobID         string        `json:"job_id"`
	RepoID        string        `json:"repo_id"`
	Status        string        `json:"status"`
	Analysis      AnalysisStats `json:"analysis"`
	Documentation []DocSection  `json:"documentation,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// AnalysisStats summarizes what a job processed.
type AnalysisStats struct {
	FilesAnalyzed int `json:"files_analyzed"`
	TotalFiles    int `json:"total_files"`
	LinesOfCode   int `json:"lines_of_code"`
	DocsGenerated int `json:"docs_generated"`
}

// DocSection is one generated documentation section.
type DocSection struct {
	Kind    string `json:"kind"` // onboarding, architecture
	Title   string `json:"title"`
	Content string `json:"content"`
}
