package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/docsight/docsight/internal/adapter/store"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/liveview"
	"github.com/docsight/docsight/internal/middleware"
	"github.com/docsight/docsight/internal/port"
	"github.com/docsight/docsight/internal/service"
)

// JobsHandler serves analysis job progress and results.
type JobsHandler struct {
	repos *service.RepoService
	cache *liveview.Cache
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(repos *service.RepoService, cache *liveview.Cache) *JobsHandler {
	return &JobsHandler{repos: repos, cache: cache}
}

// Register sets up job routes on the authenticated router.
func (h *JobsHandler) Register(router fiber.Router) {
	router.Get("/jobs", h.List)
	router.Get("/jobs/stream", h.Stream)
	router.Get("/jobs/:id/result", h.Result)
}

// List returns recent jobs, newest first, optionally scoped to one
// repository via ?repo_id=.
func (h *JobsHandler) List(c fiber.Ctx) error {
	if middleware.GetUserContext(c) == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := h.repos.ListJobs(c.Context(), c.Query("repo_id"), limit)
	if err != nil {
		slog.Error("list jobs failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list jobs"})
	}
	return c.JSON(fiber.Map{"jobs": jobs, "count": len(jobs)})
}

// Stream pushes the job list as server-sent events, optionally scoped to one
// repository via ?repo_id=. Every status transition written by the analysis
// pipeline produces a fresh snapshot.
func (h *JobsHandler) Stream(c fiber.Ctx) error {
	if middleware.GetUserContext(c) == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	desc := liveview.Descriptor{
		Collection: port.CollectionJobs,
		OrderBy:    "createdAt",
		Limit:      service.DefaultJobLimit,
	}
	if repoID := c.Query("repo_id"); repoID != "" {
		desc.Filters = append(desc.Filters, port.Eq("repoId", repoID))
	}
	return streamLiveQuery(c, h.cache, desc, func(docs []port.Document) any {
		jobs := make([]domain.Job, 0, len(docs))
		for _, doc := range docs {
			job, err := store.DecodeJob(doc)
			if err != nil {
				slog.Warn("skipping malformed job document", "id", doc.ID, "error", err)
				continue
			}
			jobs = append(jobs, job)
		}
		return fiber.Map{"jobs": jobs, "count": len(jobs)}
	})
}

// Result returns the analysis output for a completed job.
func (h *JobsHandler) Result(c fiber.Ctx) error {
	if middleware.GetUserContext(c) == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	result, err := h.repos.GetJobResult(c.Context(), c.Params("id"))
	switch {
	case errors.Is(err, port.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no result for job"})
	case err != nil:
		slog.Error("get job result failed", "job_id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load job result"})
	}
	return c.JSON(result)
}
