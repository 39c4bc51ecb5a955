package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/docsight/docsight/internal/adapter/store"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/liveview"
	"github.com/docsight/docsight/internal/middleware"
	"github.com/docsight/docsight/internal/port"
	"github.com/docsight/docsight/internal/service"
)

// RepoHandler serves the connected-repository views of the dashboard.
type RepoHandler struct {
	repos *service.RepoService
	cache *liveview.Cache
}

// NewRepoHandler creates a new repository handler.
func NewRepoHandler(repos *service.RepoService, cache *liveview.Cache) *RepoHandler {
	return &RepoHandler{repos: repos, cache: cache}
}

// Register sets up repository routes on the authenticated router.
func (h *RepoHandler) Register(router fiber.Router) {
	router.Get("/repos", h.List)
	router.Get("/repos/stream", h.Stream)
	router.Get("/repos/:id", h.Get)
	router.Delete("/repos/:id", h.Delete)
}

// List returns the caller's active repositories, newest first.
func (h *RepoHandler) List(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	repos, err := h.repos.ListRepositories(c.Context(), user.UserID)
	if err != nil {
		slog.Error("list repositories failed", "uid", user.UserID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list repositories"})
	}
	return c.JSON(fiber.Map{"repositories": repos, "count": len(repos)})
}

// Stream pushes the caller's repository list as server-sent events. The
// first event carries the current list; every matching change produces a
// fresh one.
func (h *RepoHandler) Stream(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	desc := liveview.Descriptor{
		Collection: port.CollectionRepositories,
		Filters: []port.Filter{
			port.Eq("userId", user.UserID),
			port.Eq("isActive", true),
		},
		OrderBy: "createdAt",
	}
	return streamLiveQuery(c, h.cache, desc, func(docs []port.Document) any {
		repos := make([]domain.Repository, 0, len(docs))
		for _, doc := range docs {
			repo, err := store.DecodeRepository(doc)
			if err != nil {
				slog.Warn("skipping malformed repository document", "id", doc.ID, "error", err)
				continue
			}
			repos = append(repos, repo)
		}
		return fiber.Map{"repositories": repos, "count": len(repos)}
	})
}

// Get returns a single repository owned by the caller.
func (h *RepoHandler) Get(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	repo, err := h.repos.GetRepository(c.Context(), user.UserID, c.Params("id"))
	switch {
	case errors.Is(err, port.ErrRepoNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
	case errors.Is(err, port.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	case err != nil:
		slog.Error("get repository failed", "id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load repository"})
	}
	return c.JSON(repo)
}

// Delete deactivates a repository. Deleting an already-inactive repository
// succeeds without effect.
func (h *RepoHandler) Delete(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	err := h.repos.SoftDeleteRepository(c.Context(), user.UserID, c.Params("id"))
	switch {
	case errors.Is(err, port.ErrRepoNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
	case errors.Is(err, port.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	case err != nil:
		slog.Error("soft delete failed", "id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to remove repository"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
