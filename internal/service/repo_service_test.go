package service

import (
	"context"
	"errors"
	"testing"

	"github.com/docsight/docsight/internal/adapter/store"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

func seedRepository(t *testing.T, mem *store.MemoryStore, userID, externalID, fullName string) string {
	t.Helper()
	c := domain.CandidateRepo{ExternalID: externalID, FullName: fullName, Name: fullName, OwnerLogin: "acme", DefaultBranch: "main"}
	id, err := mem.Create(context.Background(), port.CollectionRepositories,
		store.NewRepositoryFields(userID, c, "hook-1", "secret"))
	if err != nil {
		t.Fatalf("seed %s: %v", fullName, err)
	}
	return id
}

func TestListRepositoriesScopedToUser(t *testing.T) {
	mem := store.NewMemoryStore()
	seedRepository(t, mem, "user-1", "1", "acme/alpha")
	seedRepository(t, mem, "user-1", "2", "acme/beta")
	seedRepository(t, mem, "user-2", "3", "acme/other")

	svc := NewRepoService(mem)
	repos, err := svc.ListRepositories(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListRepositories: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("repos = %d, want 2", len(repos))
	}
	for _, r := range repos {
		if r.UserID != "user-1" {
			t.Fatalf("leaked repo %+v", r)
		}
	}
}

func TestListRepositoriesSkipsMalformed(t *testing.T) {
	mem := store.NewMemoryStore()
	seedRepository(t, mem, "user-1", "1", "acme/alpha")
	// Missing repoFullName: decoder must reject it without failing the listing.
	if _, err := mem.Create(context.Background(), port.CollectionRepositories, map[string]any{
		"userId": "user-1", "repoId": "2", "isActive": true,
	}); err != nil {
		t.Fatalf("seed malformed: %v", err)
	}

	svc := NewRepoService(mem)
	repos, err := svc.ListRepositories(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListRepositories: %v", err)
	}
	if len(repos) != 1 || repos[0].RepoFullName != "acme/alpha" {
		t.Fatalf("repos = %+v, want malformed record skipped", repos)
	}
}

func TestGetRepositoryOwnership(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedRepository(t, mem, "user-1", "1", "acme/alpha")
	svc := NewRepoService(mem)

	if _, err := svc.GetRepository(context.Background(), "user-1", id); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := svc.GetRepository(context.Background(), "user-2", id); !errors.Is(err, port.ErrUnauthorized) {
		t.Fatalf("foreign get = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.GetRepository(context.Background(), "user-1", "missing"); !errors.Is(err, port.ErrRepoNotFound) {
		t.Fatalf("missing get = %v, want ErrRepoNotFound", err)
	}
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedRepository(t, mem, "user-1", "1", "acme/alpha")
	svc := NewRepoService(mem)
	ctx := context.Background()

	if err := svc.SoftDeleteRepository(ctx, "user-1", id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := svc.SoftDeleteRepository(ctx, "user-1", id); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	// Record survives, just inactive and out of listings.
	doc, err := mem.Get(ctx, port.CollectionRepositories, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["isActive"] != false {
		t.Fatalf("isActive = %v, want false", doc.Data["isActive"])
	}
	repos, err := svc.ListRepositories(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListRepositories: %v", err)
	}
	if len(repos) != 0 {
		t.Fatalf("repos = %d after delete, want 0", len(repos))
	}
}

func TestSoftDeleteForeignRepoRejected(t *testing.T) {
	mem := store.NewMemoryStore()
	id := seedRepository(t, mem, "user-1", "1", "acme/alpha")
	svc := NewRepoService(mem)

	if err := svc.SoftDeleteRepository(context.Background(), "user-2", id); !errors.Is(err, port.ErrUnauthorized) {
		t.Fatalf("foreign delete = %v, want ErrUnauthorized", err)
	}
}

func seedJob(t *testing.T, mem *store.MemoryStore, repoID, status string) string {
	t.Helper()
	id, err := mem.Create(context.Background(), port.CollectionJobs, map[string]any{
		"jobType": domain.JobTypePushAnalysis, "status": status, "repoId": repoID, "repoFullName": "acme/alpha",
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return id
}

func TestListJobsFilterAndLimit(t *testing.T) {
	mem := store.NewMemoryStore()
	for i := 0; i < 12; i++ {
		seedJob(t, mem, "42", domain.JobStatusCompleted)
	}
	seedJob(t, mem, "99", domain.JobStatusQueued)

	svc := NewRepoService(mem)
	ctx := context.Background()

	jobs, err := svc.ListJobs(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != DefaultJobLimit {
		t.Fatalf("jobs = %d, want default limit %d", len(jobs), DefaultJobLimit)
	}

	scoped, err := svc.ListJobs(ctx, "99", 0)
	if err != nil {
		t.Fatalf("ListJobs scoped: %v", err)
	}
	if len(scoped) != 1 || scoped[0].RepoID != "99" {
		t.Fatalf("scoped jobs = %+v", scoped)
	}
}

func TestGetJobResult(t *testing.T) {
	mem := store.NewMemoryStore()
	jobID := seedJob(t, mem, "42", domain.JobStatusCompleted)
	if _, err := mem.Create(context.Background(), port.CollectionJobResults, map[string]any{
		"jobId": jobID, "repoId": "42", "status": "completed",
		"analysis": map[string]any{"filesAnalyzed": 5, "totalFiles": 5, "linesOfCode": 900, "docsGenerated": 1},
	}); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	svc := NewRepoService(mem)
	result, err := svc.GetJobResult(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJobResult: %v", err)
	}
	if result.JobID != jobID || result.Analysis.LinesOfCode != 900 {
		t.Fatalf("result = %+v", result)
	}

	if _, err := svc.GetJobResult(context.Background(), "no-such-job"); !errors.Is(err, port.ErrJobNotFound) {
		t.Fatalf("missing result = %v, want ErrJobNotFound", err)
	}
}
