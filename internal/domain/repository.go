package domain

import "time"

// Repository is a source-code repository connected to the dashboard.
// Exactly one active record exists per (UserID, RepoID) pair; removal is a
// soft delete that flips IsActive and keeps the record for history.
type Repository struct {
	ID              string     `json:"id"`
	RepoID          string     `json:"repo_id"`
	RepoFullName    string     `json:"repo_full_name"`
	Name            string     `json:"name"`
	OwnerLogin      string     `json:"owner_login"`
	Description     string     `json:"description,omitempty"`
	IsPrivate       bool       `json:"is_private"`
	Language        string     `json:"language,omitempty"`
	DefaultBranch   string     `json:"default_branch"`
	WebhookID       string     `json:"webhook_id,omitempty"`
	WebhookSecret   string     `json:"-"` // never serialized to JSON
	LastAnalyzedSHA string     `json:"last_analyzed_sha,omitempty"`
	LastAnalyzedAt  *time.Time `json:"last_analyzed_at,omitempty"`
	Stats           RepoStats  `json:"stats"`
	IsActive        bool       `json:"is_active"`
	UserID          string     `json:"user_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RepoStats holds aggregate analysis figures maintained by the pipeline.
type RepoStats struct {
	DocsCount     int     `json:"docs_count"`
	FilesAnalyzed int     `json:"files_analyzed"`
	Coverage      float64 `json:"coverage"`
}

// CandidateRepo is a repository offered for connection by the source host.
type CandidateRepo struct {
	ExternalID    string `json:"external_id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	OwnerLogin    string `json:"owner_login"`
	Description   string `json:"description,omitempty"`
	IsPrivate     bool   `json:"is_private"`
	Language      string `json:"language,omitempty"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url,omitempty"`
	Stars         int    `json:"stars"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}
