package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docsight/docsight/internal/adapter/store"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

// DefaultJobLimit caps job listings when the caller does not ask for more.
const DefaultJobLimit = 10

// RepoService exposes typed, user-scoped reads and the soft-delete write
// over the document store. All raw documents pass through the schema
// decoders; a malformed record is logged and skipped rather than poisoning
// the whole listing.
type RepoService struct {
	store port.DocumentStore
}

// NewRepoService creates a new repository service.
func NewRepoService(s port.DocumentStore) *RepoService {
	return &RepoService{store: s}
}

// ListRepositories returns the user's active repositories, newest first.
func (s *RepoService) ListRepositories(ctx context.Context, userID string) ([]domain.Repository, error) {
	docs, err := s.store.Query(ctx, port.CollectionRepositories, []port.Filter{
		port.Eq("userId", userID),
		port.Eq("isActive", true),
	}, "createdAt", 0)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return decodeRepositories(docs), nil
}

// GetRepository returns one repository owned by the user.
func (s *RepoService) GetRepository(ctx context.Context, userID, id string) (domain.Repository, error) {
	doc, err := s.store.Get(ctx, port.CollectionRepositories, id)
	if port.IsNotFound(err) {
		return domain.Repository{}, port.ErrRepoNotFound
	}
	if err != nil {
		return domain.Repository{}, fmt.Errorf("get repository: %w", err)
	}

	repo, err := store.DecodeRepository(doc)
	if err != nil {
		return domain.Repository{}, fmt.Errorf("get repository: %w", err)
	}
	if repo.UserID != userID {
		return domain.Repository{}, port.ErrUnauthorized
	}
	return repo, nil
}

// SoftDeleteRepository marks a repository inactive, keeping the record.
// Deleting an already-inactive repository is a no-op apart from the
// updatedAt bump.
func (s *RepoService) SoftDeleteRepository(ctx context.Context, userID, id string) error {
	if _, err := s.GetRepository(ctx, userID, id); err != nil {
		return err
	}

	err := s.store.Update(ctx, port.CollectionRepositories, id, map[string]any{"isActive": false})
	if err != nil {
		return fmt.Errorf("soft delete repository: %w", err)
	}
	return nil
}

// ListJobs returns recent jobs, optionally scoped to one repository.
func (s *RepoService) ListJobs(ctx context.Context, repoID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = DefaultJobLimit
	}
	var filters []port.Filter
	if repoID != "" {
		filters = append(filters, port.Eq("repoId", repoID))
	}

	docs, err := s.store.Query(ctx, port.CollectionJobs, filters, "createdAt", limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(docs))
	for _, doc := range docs {
		job, err := store.DecodeJob(doc)
		if err != nil {
			slog.Warn("skipping malformed job document", "doc_id", doc.ID, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJobResult returns the result tied to a job, or port.ErrJobNotFound
// when the job has not produced one.
func (s *RepoService) GetJobResult(ctx context.Context, jobID string) (domain.JobResult, error) {
	docs, err := s.store.Query(ctx, port.CollectionJobResults, []port.Filter{
		port.Eq("jobId", jobID),
	}, "createdAt", 1)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("get job result: %w", err)
	}
	if len(docs) == 0 {
		return domain.JobResult{}, port.ErrJobNotFound
	}

	result, err := store.DecodeJobResult(docs[0])
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("get job result: %w", err)
	}
	return result, nil
}

// decodeRepositories decodes a document slice, dropping malformed records.
func decodeRepositories(docs []port.Document) []domain.Repository {
	repos := make([]domain.Repository, 0, len(docs))
	for _, doc := range docs {
		repo, err := store.DecodeRepository(doc)
		if err != nil {
			slog.Warn("skipping malformed repository document", "doc_id", doc.ID, "error", err)
			continue
		}
		repos = append(repos, repo)
	}
	return repos
}
