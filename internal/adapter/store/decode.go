package store

import (
	"fmt"
	"time"

	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

// Decoders validate raw store documents and convert them into the typed
// entities of the domain package. A document that fails validation is
// rejected with a coded malformed error instead of propagating untyped data
// upward.

// DecodeRepository converts a raw document into a Repository.
func DecodeRepository(doc port.Document) (domain.Repository, error) {
	d := doc.Data
	repo := domain.Repository{
		ID:              doc.ID,
		RepoID:          asString(d["repoId"]),
		RepoFullName:    asString(d["repoFullName"]),
		Name:            asString(d["name"]),
		OwnerLogin:      asString(d["ownerLogin"]),
		Description:     asString(d["description"]),
		IsPrivate:       asBool(d["isPrivate"]),
		Language:        asString(d["language"]),
		DefaultBranch:   asString(d["defaultBranch"]),
		WebhookID:       asString(d["webhookId"]),
		WebhookSecret:   asString(d["webhookSecret"]),
		LastAnalyzedSHA: asString(d["lastAnalyzedSha"]),
		IsActive:        asBool(d["isActive"]),
		UserID:          asString(d["userId"]),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}

	if t, ok := asTime(d["lastAnalyzedAt"]); ok {
		repo.LastAnalyzedAt = &t
	}
	if stats, ok := d["stats"].(map[string]any); ok {
		repo.Stats = domain.RepoStats{
			DocsCount:     asInt(stats["docsCount"]),
			FilesAnalyzed: asInt(stats["filesAnalyzed"]),
			Coverage:      asFloat(stats["coverage"]),
		}
	}

	if repo.RepoID == "" || repo.RepoFullName == "" || repo.UserID == "" {
		return domain.Repository{}, malformed("repository", doc.ID, "missing repoId, repoFullName or userId")
	}
	return repo, nil
}

// DecodeJob converts a raw document into a Job.
func DecodeJob(doc port.Document) (domain.Job, error) {
	d := doc.Data
	job := domain.Job{
		ID:           doc.ID,
		JobType:      asString(d["jobType"]),
		Status:       asString(d["status"]),
		RepoID:       asString(d["repoId"]),
		RepoFullName: asString(d["repoFullName"]),
		PRNumber:     asInt(d["prNumber"]),
		Error:        asString(d["error"]),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if t, ok := asTime(d["completedAt"]); ok {
		job.CompletedAt = &t
	}

	switch job.JobType {
	case domain.JobTypeInitialIngestion, domain.JobTypePRAnalysis, domain.JobTypePushAnalysis, domain.JobTypeDeltaAnalysis:
	default:
		return domain.Job{}, malformed("job", doc.ID, "unknown jobType "+job.JobType)
	}
	switch job.Status {
	case domain.JobStatusQueued, domain.JobStatusDispatched, domain.JobStatusInProgress, domain.JobStatusCompleted, domain.JobStatusFailed:
	default:
		return domain.Job{}, malformed("job", doc.ID, "unknown status "+job.Status)
	}
	if job.RepoID == "" {
		return domain.Job{}, malformed("job", doc.ID, "missing repoId")
	}
	if job.CompletedAt != nil && !domain.JobStatusTerminal(job.Status) {
		return domain.Job{}, malformed("job", doc.ID, "completedAt set on non-terminal status "+job.Status)
	}
	return job, nil
}

// DecodeJobResult converts a raw document into a JobResult.
func DecodeJobResult(doc port.Document) (domain.JobResult, error) {
	d := doc.Data
	result := domain.JobResult{
		ID:        doc.ID,
		JobID:     asString(d["jobId"]),
		RepoID:    asString(d["repoId"]),
		Status:    asString(d["status"]),
		CreatedAt: doc.CreatedAt,
	}
	if result.JobID == "" {
		return domain.JobResult{}, malformed("jobResult", doc.ID, "missing jobId")
	}

	if analysis, ok := d["analysis"].(map[string]any); ok {
		result.Analysis = domain.AnalysisStats{
			FilesAnalyzed: asInt(analysis["filesAnalyzed"]),
			TotalFiles:    asInt(analysis["totalFiles"]),
			LinesOfCode:   asInt(analysis["linesOfCode"]),
			DocsGenerated: asInt(analysis["docsGenerated"]),
		}
	}
	if sections, ok := d["documentation"].(map[string]any); ok {
		for _, kind := range []string{"onboarding", "architecture"} {
			if section, ok := sections[kind].(map[string]any); ok {
				result.Documentation = append(result.Documentation, domain.DocSection{
					Kind:    kind,
					Title:   asString(section["title"]),
					Content: asString(section["content"]),
				})
			}
		}
	}
	return result, nil
}

// DecodeProfile converts a raw document into a Profile.
func DecodeProfile(doc port.Document) (domain.Profile, error) {
	d := doc.Data
	profile := domain.Profile{
		UID:         asString(d["uid"]),
		Email:       asString(d["email"]),
		DisplayName: asString(d["displayName"]),
		PhotoURL:    asString(d["photoURL"]),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if profile.UID == "" {
		return domain.Profile{}, malformed("profile", doc.ID, "missing uid")
	}

	if t, ok := asTime(d["lastLoginAt"]); ok {
		profile.LastLoginAt = t
	}
	if repos, ok := d["repositories"].([]any); ok {
		for _, r := range repos {
			profile.Repositories = append(profile.Repositories, asString(r))
		}
	}
	if prefs, ok := d["preferences"].(map[string]any); ok {
		profile.Preferences = domain.Preferences{
			Theme:         asString(prefs["theme"]),
			Notifications: asBool(prefs["notifications"]),
			EmailUpdates:  asBool(prefs["emailUpdates"]),
		}
	}
	if stats, ok := d["stats"].(map[string]any); ok {
		profile.Stats = domain.ProfileStats{
			TotalRepos: asInt(stats["totalRepos"]),
			TotalDocs:  asInt(stats["totalDocs"]),
		}
		if t, ok := asTime(stats["lastActiveAt"]); ok {
			profile.Stats.LastActiveAt = t
		}
	}
	return profile, nil
}

// NewRepositoryFields builds the document body for a freshly connected
// repository. Stats start at zero; the analysis pipeline maintains them.
func NewRepositoryFields(userID string, c domain.CandidateRepo, webhookID, webhookSecret string) map[string]any {
	return map[string]any{
		"userId":        userID,
		"repoId":        c.ExternalID,
		"repoFullName":  c.FullName,
		"name":          c.Name,
		"ownerLogin":    c.OwnerLogin,
		"description":   c.Description,
		"isPrivate":     c.IsPrivate,
		"language":      c.Language,
		"defaultBranch": c.DefaultBranch,
		"webhookId":     webhookID,
		"webhookSecret": webhookSecret,
		"isActive":      true,
		"stats": map[string]any{
			"docsCount":     0,
			"filesAnalyzed": 0,
			"coverage":      0,
		},
	}
}

func malformed(kind, id, reason string) error {
	return port.NewStoreError(port.StoreCodeMalformed, fmt.Errorf("%s %s: %s", kind, id, reason))
}

// --- loose-typed field accessors (JSON round-trips widen types) ---

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	default:
		return 0
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
