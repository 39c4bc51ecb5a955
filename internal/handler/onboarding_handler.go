package handler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v3"

	"github.com/docsight/docsight/internal/middleware"
	"github.com/docsight/docsight/internal/onboarding"
	"github.com/docsight/docsight/internal/port"
	"github.com/docsight/docsight/internal/session"
)

// OnboardingHandler drives the connect-repositories flow. Each user gets at
// most one orchestrator at a time; starting a new flow discards the previous
// one once it has reached a terminal step.
type OnboardingHandler struct {
	sessions *session.Manager
	source   port.SourceHost
	store    port.DocumentStore
	opts     []onboarding.Option

	mu    sync.Mutex
	flows map[string]*onboarding.Orchestrator
}

// NewOnboardingHandler creates a new onboarding handler. The options are
// applied to every orchestrator it creates.
func NewOnboardingHandler(sessions *session.Manager, source port.SourceHost, docStore port.DocumentStore, opts ...onboarding.Option) *OnboardingHandler {
	return &OnboardingHandler{
		sessions: sessions,
		source:   source,
		store:    docStore,
		opts:     opts,
		flows:    make(map[string]*onboarding.Orchestrator),
	}
}

// Register sets up onboarding routes on the authenticated router.
func (h *OnboardingHandler) Register(router fiber.Router) {
	ob := router.Group("/onboarding")
	ob.Post("/", h.Start)
	ob.Get("/candidates", h.Candidates)
	ob.Post("/toggle", h.Toggle)
	ob.Post("/confirm", h.Confirm)
	ob.Post("/cancel", h.Cancel)
	ob.Get("/state", h.State)
}

// Start begins a new onboarding flow for the caller and loads the candidate
// repository list from the source host.
func (h *OnboardingHandler) Start(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	identity := h.sessions.CurrentIdentity()
	if identity == nil || identity.UID != user.UserID {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no active session for user"})
	}

	h.mu.Lock()
	if existing, ok := h.flows[user.UserID]; ok && !existing.Snapshot().Step.Terminal() {
		h.mu.Unlock()
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "an onboarding flow is already in progress"})
	}
	flow := onboarding.New(h.source, h.store, identity, h.opts...)
	h.flows[user.UserID] = flow
	h.mu.Unlock()

	if err := flow.FetchCandidates(c.Context()); err != nil {
		slog.Error("fetch candidates failed", "uid", user.UserID, "error", err)
		// The flow stays in selecting; the client may retry via a new Start.
	}
	return c.Status(fiber.StatusCreated).JSON(flow.Snapshot())
}

// Candidates returns the candidate list, filtered by ?q= when present.
func (h *OnboardingHandler) Candidates(c fiber.Ctx) error {
	flow, errResp := h.currentFlow(c)
	if flow == nil {
		return errResp
	}
	candidates := flow.Candidates(c.Query("q"))
	return c.JSON(fiber.Map{"candidates": candidates, "count": len(candidates)})
}

type toggleRequest struct {
	ExternalID string `json:"external_id"`
}

// Toggle flips a candidate in or out of the selection.
func (h *OnboardingHandler) Toggle(c fiber.Ctx) error {
	flow, errResp := h.currentFlow(c)
	if flow == nil {
		return errResp
	}

	var req toggleRequest
	if err := c.Bind().JSON(&req); err != nil || req.ExternalID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "external_id is required"})
	}
	if err := flow.Toggle(req.ExternalID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(flow.Snapshot())
}

// Confirm commits the selection and starts connecting the selected
// repositories in the background. Progress is observable via State.
func (h *OnboardingHandler) Confirm(c fiber.Ctx) error {
	flow, errResp := h.currentFlow(c)
	if flow == nil {
		return errResp
	}

	snap := flow.Snapshot()
	if len(snap.Selected) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": port.ErrEmptySelection.Error()})
	}
	if !snap.Step.CanTransition(onboarding.StepConnecting) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": port.ErrInvalidTransition.Error()})
	}

	go func() {
		if err := flow.Confirm(context.Background()); err != nil {
			slog.Error("onboarding confirm failed", "error", err)
		}
	}()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"step": onboarding.StepConnecting})
}

// Cancel abandons the flow. Only a flow still selecting can be cancelled.
func (h *OnboardingHandler) Cancel(c fiber.Ctx) error {
	flow, errResp := h.currentFlow(c)
	if flow == nil {
		return errResp
	}
	if err := flow.Cancel(); err != nil {
		if errors.Is(err, port.ErrInvalidTransition) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "flow can no longer be cancelled"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(flow.Snapshot())
}

// State returns the current step, selection and per-repository outcomes.
func (h *OnboardingHandler) State(c fiber.Ctx) error {
	flow, errResp := h.currentFlow(c)
	if flow == nil {
		return errResp
	}
	return c.JSON(flow.Snapshot())
}

// currentFlow resolves the caller's active orchestrator. On failure it
// writes the error response and returns a nil flow.
func (h *OnboardingHandler) currentFlow(c fiber.Ctx) (*onboarding.Orchestrator, error) {
	user := middleware.GetUserContext(c)
	if user == nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	h.mu.Lock()
	flow, ok := h.flows[user.UserID]
	h.mu.Unlock()
	if !ok {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no onboarding flow in progress"})
	}
	return flow, nil
}
