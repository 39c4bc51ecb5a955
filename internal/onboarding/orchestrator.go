// Package onboarding drives the connect-repositories workflow: fetch
// candidates, let the user pick a subset, then run a three-step remote
// sequence per item, tolerating per-item failure.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/docsight/docsight/internal/adapter/store"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

// defaultItemDelay paces the connect loop so the source host never sees a
// burst of webhook registrations.
const defaultItemDelay = 500 * time.Millisecond

// Orchestrator owns the state of one onboarding interaction. It is created
// per interaction and discarded when the interaction closes; two instances
// never share state.
type Orchestrator struct {
	source   port.SourceHost
	store    port.DocumentStore
	identity *domain.Identity
	delay    time.Duration

	mu         sync.Mutex
	step       Step
	candidates []domain.CandidateRepo
	selected   []string // external ids in selection order
	outcomes   []Outcome
	wfErr      string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithItemDelay overrides the fixed delay between batch items.
func WithItemDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.delay = d }
}

// New returns an orchestrator in the Selecting step.
func New(source port.SourceHost, docStore port.DocumentStore, identity *domain.Identity, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:   source,
		store:    docStore,
		identity: identity,
		delay:    defaultItemDelay,
		step:     StepSelecting,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FetchCandidates loads the candidate repository list from the source host.
// On failure the workflow stays in Selecting with an error set, and the user
// may retry by calling FetchCandidates again.
func (o *Orchestrator) FetchCandidates(ctx context.Context) error {
	o.mu.Lock()
	if o.step != StepSelecting {
		o.mu.Unlock()
		return fmt.Errorf("fetch candidates in step %s: %w", o.step, port.ErrInvalidTransition)
	}
	o.mu.Unlock()

	repos, err := o.source.ListRepositories(ctx, o.identity)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.wfErr = "Failed to load repositories. Please try again."
		return fmt.Errorf("fetch candidates: %w", err)
	}
	o.candidates = repos
	o.wfErr = ""
	return nil
}

// Candidates returns the fetched list, optionally filtered by a search query
// matched against name and description.
func (o *Orchestrator) Candidates(query string) []domain.CandidateRepo {
	o.mu.Lock()
	defer o.mu.Unlock()

	if query == "" {
		return append([]domain.CandidateRepo(nil), o.candidates...)
	}
	q := strings.ToLower(query)
	var out []domain.CandidateRepo
	for _, c := range o.candidates {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Description), q) {
			out = append(out, c)
		}
	}
	return out
}

// Toggle flips membership of an external repo id in the selected set.
// Selection order is preserved for the connect loop. Allowed only while
// Selecting.
func (o *Orchestrator) Toggle(externalID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.step != StepSelecting {
		return fmt.Errorf("toggle in step %s: %w", o.step, port.ErrInvalidTransition)
	}
	if o.findCandidate(externalID) == nil {
		return fmt.Errorf("toggle %s: %w", externalID, port.ErrRepoNotFound)
	}

	for i, id := range o.selected {
		if id == externalID {
			o.selected = append(o.selected[:i], o.selected[i+1:]...)
			return nil
		}
	}
	o.selected = append(o.selected, externalID)
	return nil
}

// Cancel abandons the workflow. Only reachable from Selecting; once
// Connecting starts, the batch runs to completion.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.step.CanTransition(StepCancelled) {
		return fmt.Errorf("cancel in step %s: %w", o.step, port.ErrInvalidTransition)
	}
	o.step = StepCancelled
	return nil
}

// Confirm moves the workflow to Connecting and processes the selected set as
// a sequential, ordered loop: for each item, register the webhook, persist
// the repository record, then trigger the initial analysis. A failure in one
// item never aborts its siblings. Confirm returns when the whole batch has
// been processed and the workflow is Complete.
func (o *Orchestrator) Confirm(ctx context.Context) error {
	o.mu.Lock()
	if !o.step.CanTransition(StepConnecting) {
		o.mu.Unlock()
		return fmt.Errorf("confirm in step %s: %w", o.step, port.ErrInvalidTransition)
	}
	if len(o.selected) == 0 {
		o.mu.Unlock()
		return port.ErrEmptySelection
	}

	o.step = StepConnecting
	o.outcomes = o.outcomes[:0]
	items := make([]domain.CandidateRepo, 0, len(o.selected))
	for _, id := range o.selected {
		c := o.findCandidate(id)
		if c == nil {
			continue
		}
		items = append(items, *c)
		o.outcomes = append(o.outcomes, Outcome{ExternalID: id, FullName: c.FullName, Status: OutcomePending})
	}
	o.mu.Unlock()

	for i, item := range items {
		docID, reason := o.connectOne(ctx, item)

		o.mu.Lock()
		if reason == "" {
			o.outcomes[i].Status = OutcomeConnected
			o.outcomes[i].RepoDocID = docID
		} else {
			o.outcomes[i].Status = OutcomeFailed
			o.outcomes[i].Reason = reason
		}
		o.mu.Unlock()

		if o.delay > 0 {
			time.Sleep(o.delay)
		}
	}

	o.mu.Lock()
	o.step = StepComplete
	o.mu.Unlock()
	return nil
}

// connectOne runs the three dependent remote calls for one repository, in
// order. A failure registering the webhook or persisting the record fails
// the item; a failure triggering the analysis does not, because the
// persisted record is the durability boundary and the analysis can be
// retriggered by the pipeline later.
func (o *Orchestrator) connectOne(ctx context.Context, c domain.CandidateRepo) (docID, failReason string) {
	webhookID, secret, err := o.source.RegisterWebhook(ctx, o.identity, c.FullName)
	if err != nil {
		slog.Error("webhook registration failed", "repo", c.FullName, "error", err)
		return "", fmt.Sprintf("register webhook: %v", err)
	}

	docID, err = o.persistRepository(ctx, c, webhookID, secret)
	if err != nil {
		slog.Error("repository persist failed", "repo", c.FullName, "error", err)
		return "", fmt.Sprintf("persist repository: %v", err)
	}

	if err := o.source.TriggerAnalysis(ctx, o.identity, c.FullName); err != nil {
		slog.Warn("initial analysis trigger failed, repository stays connected",
			"repo", c.FullName, "error", err)
	}
	return docID, ""
}

// persistRepository writes the repository record, reusing an existing active
// record for the same (user, external repo) pair so the one-active-record
// invariant holds even when a repository is connected twice.
func (o *Orchestrator) persistRepository(ctx context.Context, c domain.CandidateRepo, webhookID, secret string) (string, error) {
	existing, err := o.store.Query(ctx, port.CollectionRepositories, []port.Filter{
		port.Eq("userId", o.identity.UID),
		port.Eq("repoId", c.ExternalID),
		port.Eq("isActive", true),
	}, "createdAt", 1)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		id := existing[0].ID
		patch := map[string]any{"webhookId": webhookID, "webhookSecret": secret}
		if err := o.store.Update(ctx, port.CollectionRepositories, id, patch); err != nil {
			return "", err
		}
		return id, nil
	}

	return o.store.Create(ctx, port.CollectionRepositories,
		store.NewRepositoryFields(o.identity.UID, c, webhookID, secret))
}

// State is a read-only copy of the workflow state for the presentation layer.
type State struct {
	Step           Step                   `json:"step"`
	Candidates     []domain.CandidateRepo `json:"candidates"`
	Selected       []string               `json:"selected"`
	Outcomes       []Outcome              `json:"outcomes"`
	Error          string                 `json:"error,omitempty"`
	ConnectedCount int                    `json:"connected_count"`
}

// Snapshot returns a copy of the current workflow state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := State{
		Step:       o.step,
		Candidates: append([]domain.CandidateRepo(nil), o.candidates...),
		Selected:   append([]string(nil), o.selected...),
		Outcomes:   append([]Outcome(nil), o.outcomes...),
		Error:      o.wfErr,
	}
	for _, out := range o.outcomes {
		if out.Status == OutcomeConnected {
			s.ConnectedCount++
		}
	}
	return s
}

func (o *Orchestrator) findCandidate(externalID string) *domain.CandidateRepo {
	for i := range o.candidates {
		if o.candidates[i].ExternalID == externalID {
			return &o.candidates[i]
		}
	}
	return nil
}
