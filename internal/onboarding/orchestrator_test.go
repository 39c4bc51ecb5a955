package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/docsight/docsight/internal/adapter/store"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

type fakeHost struct {
	mu    sync.Mutex
	calls []string

	listFn    func(ctx context.Context, identity *domain.Identity) ([]domain.CandidateRepo, error)
	hookFn    func(fullName string) (string, string, error)
	triggerFn func(fullName string) error
}

func (f *fakeHost) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeHost) ListRepositories(ctx context.Context, identity *domain.Identity) ([]domain.CandidateRepo, error) {
	f.record("list")
	if f.listFn != nil {
		return f.listFn(ctx, identity)
	}
	return nil, nil
}

func (f *fakeHost) RegisterWebhook(ctx context.Context, identity *domain.Identity, fullName string) (string, string, error) {
	f.record("hook:" + fullName)
	if f.hookFn != nil {
		return f.hookFn(fullName)
	}
	return "hook-1", "secret-1", nil
}

func (f *fakeHost) TriggerAnalysis(ctx context.Context, identity *domain.Identity, fullName string) error {
	f.record("trigger:" + fullName)
	if f.triggerFn != nil {
		return f.triggerFn(fullName)
	}
	return nil
}

// recordingStore logs writes so tests can assert call order across the
// connect loop.
type recordingStore struct {
	*store.MemoryStore
	host *fakeHost
}

func (r *recordingStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	r.host.record("persist:" + fmt.Sprint(fields["repoFullName"]))
	return r.MemoryStore.Create(ctx, collection, fields)
}

func candidates(n int) []domain.CandidateRepo {
	out := make([]domain.CandidateRepo, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.CandidateRepo{
			ExternalID:    fmt.Sprintf("%d", i),
			Name:          fmt.Sprintf("repo-%d", i),
			FullName:      fmt.Sprintf("acme/repo-%d", i),
			OwnerLogin:    "acme",
			DefaultBranch: "main",
		})
	}
	return out
}

func testIdentity() *domain.Identity {
	return &domain.Identity{UID: "user-1", Email: "dev@acme.test", AccessToken: "tok"}
}

func newTestOrchestrator(t *testing.T, host *fakeHost, docStore port.DocumentStore, n int) *Orchestrator {
	t.Helper()
	host.listFn = func(context.Context, *domain.Identity) ([]domain.CandidateRepo, error) {
		return candidates(n), nil
	}
	o := New(host, docStore, testIdentity(), WithItemDelay(0))
	if err := o.FetchCandidates(context.Background()); err != nil {
		t.Fatalf("FetchCandidates: %v", err)
	}
	return o
}

func TestConfirmConnectsSelectedRepos(t *testing.T) {
	host := &fakeHost{}
	mem := store.NewMemoryStore()
	o := newTestOrchestrator(t, host, mem, 3)

	for _, id := range []string{"1", "3"} {
		if err := o.Toggle(id); err != nil {
			t.Fatalf("Toggle(%s): %v", id, err)
		}
	}
	if err := o.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	snap := o.Snapshot()
	if snap.Step != StepComplete {
		t.Fatalf("step = %s, want %s", snap.Step, StepComplete)
	}
	if snap.ConnectedCount != 2 {
		t.Fatalf("connected = %d, want 2", snap.ConnectedCount)
	}
	for _, out := range snap.Outcomes {
		if out.Status != OutcomeConnected {
			t.Errorf("outcome %s = %s, want connected", out.ExternalID, out.Status)
		}
		if out.RepoDocID == "" {
			t.Errorf("outcome %s missing repo doc id", out.ExternalID)
		}
	}

	docs, err := mem.Query(context.Background(), port.CollectionRepositories, nil, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("persisted %d records, want 2", len(docs))
	}
}

func TestConfirmOneFailureDoesNotAbortSiblings(t *testing.T) {
	host := &fakeHost{
		hookFn: func(fullName string) (string, string, error) {
			if fullName == "acme/repo-2" {
				return "", "", errors.New("boom")
			}
			return "hook-1", "secret-1", nil
		},
	}
	mem := store.NewMemoryStore()
	o := newTestOrchestrator(t, host, mem, 3)

	for _, id := range []string{"1", "2", "3"} {
		if err := o.Toggle(id); err != nil {
			t.Fatalf("Toggle(%s): %v", id, err)
		}
	}
	if err := o.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	snap := o.Snapshot()
	if snap.Step != StepComplete {
		t.Fatalf("step = %s, want %s", snap.Step, StepComplete)
	}
	want := map[string]OutcomeStatus{"1": OutcomeConnected, "2": OutcomeFailed, "3": OutcomeConnected}
	for _, out := range snap.Outcomes {
		if out.Status != want[out.ExternalID] {
			t.Errorf("outcome %s = %s, want %s", out.ExternalID, out.Status, want[out.ExternalID])
		}
	}
	for _, out := range snap.Outcomes {
		if out.ExternalID == "2" {
			if !strings.Contains(out.Reason, "register webhook") {
				t.Errorf("failure reason = %q, want webhook reason", out.Reason)
			}
		}
	}

	docs, err := mem.Query(context.Background(), port.CollectionRepositories, nil, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("persisted %d records, want 2", len(docs))
	}
}

func TestConfirmStepsRunInOrderPerItem(t *testing.T) {
	host := &fakeHost{}
	rec := &recordingStore{MemoryStore: store.NewMemoryStore(), host: host}
	o := newTestOrchestrator(t, host, rec, 2)

	for _, id := range []string{"1", "2"} {
		if err := o.Toggle(id); err != nil {
			t.Fatalf("Toggle(%s): %v", id, err)
		}
	}
	if err := o.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	want := []string{
		"list",
		"hook:acme/repo-1", "persist:acme/repo-1", "trigger:acme/repo-1",
		"hook:acme/repo-2", "persist:acme/repo-2", "trigger:acme/repo-2",
	}
	got := host.calls
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestConfirmEmptySelection(t *testing.T) {
	o := newTestOrchestrator(t, &fakeHost{}, store.NewMemoryStore(), 2)

	err := o.Confirm(context.Background())
	if !errors.Is(err, port.ErrEmptySelection) {
		t.Fatalf("Confirm = %v, want ErrEmptySelection", err)
	}
	if snap := o.Snapshot(); snap.Step != StepSelecting {
		t.Fatalf("step after rejected confirm = %s, want selecting", snap.Step)
	}
}

func TestTriggerFailureStillConnected(t *testing.T) {
	host := &fakeHost{
		triggerFn: func(string) error { return errors.New("dispatch down") },
	}
	mem := store.NewMemoryStore()
	o := newTestOrchestrator(t, host, mem, 1)

	if err := o.Toggle("1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if err := o.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	snap := o.Snapshot()
	if snap.ConnectedCount != 1 {
		t.Fatalf("connected = %d, want 1", snap.ConnectedCount)
	}
	if snap.Outcomes[0].Status != OutcomeConnected {
		t.Fatalf("outcome = %s, want connected", snap.Outcomes[0].Status)
	}
}

func TestReconnectReusesActiveRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	existingID, err := mem.Create(context.Background(), port.CollectionRepositories,
		store.NewRepositoryFields("user-1", candidates(1)[0], "old-hook", "old-secret"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	o := newTestOrchestrator(t, &fakeHost{}, mem, 1)
	if err := o.Toggle("1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if err := o.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	snap := o.Snapshot()
	if snap.Outcomes[0].RepoDocID != existingID {
		t.Fatalf("doc id = %s, want reused %s", snap.Outcomes[0].RepoDocID, existingID)
	}

	docs, err := mem.Query(context.Background(), port.CollectionRepositories, nil, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("records = %d, want 1", len(docs))
	}
	if got := docs[0].Data["webhookId"]; got != "hook-1" {
		t.Fatalf("webhookId = %v, want refreshed hook-1", got)
	}
}

func TestToggleOrderAndUnknown(t *testing.T) {
	o := newTestOrchestrator(t, &fakeHost{}, store.NewMemoryStore(), 3)

	for _, id := range []string{"3", "1", "2"} {
		if err := o.Toggle(id); err != nil {
			t.Fatalf("Toggle(%s): %v", id, err)
		}
	}
	if err := o.Toggle("1"); err != nil { // deselect
		t.Fatalf("Toggle off: %v", err)
	}
	if err := o.Toggle("99"); !errors.Is(err, port.ErrRepoNotFound) {
		t.Fatalf("Toggle unknown = %v, want ErrRepoNotFound", err)
	}

	snap := o.Snapshot()
	want := []string{"3", "2"}
	if len(snap.Selected) != len(want) {
		t.Fatalf("selected = %v, want %v", snap.Selected, want)
	}
	for i := range want {
		if snap.Selected[i] != want[i] {
			t.Fatalf("selected = %v, want %v", snap.Selected, want)
		}
	}
}

func TestCancelOnlyWhileSelecting(t *testing.T) {
	o := newTestOrchestrator(t, &fakeHost{}, store.NewMemoryStore(), 1)

	if err := o.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if snap := o.Snapshot(); snap.Step != StepCancelled {
		t.Fatalf("step = %s, want cancelled", snap.Step)
	}
	if err := o.Confirm(context.Background()); !errors.Is(err, port.ErrInvalidTransition) {
		t.Fatalf("Confirm after cancel = %v, want ErrInvalidTransition", err)
	}
	if err := o.Toggle("1"); !errors.Is(err, port.ErrInvalidTransition) {
		t.Fatalf("Toggle after cancel = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelAfterCompleteRejected(t *testing.T) {
	o := newTestOrchestrator(t, &fakeHost{}, store.NewMemoryStore(), 1)

	if err := o.Toggle("1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if err := o.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := o.Cancel(); !errors.Is(err, port.ErrInvalidTransition) {
		t.Fatalf("Cancel after complete = %v, want ErrInvalidTransition", err)
	}
}

func TestCandidatesSearch(t *testing.T) {
	host := &fakeHost{
		listFn: func(context.Context, *domain.Identity) ([]domain.CandidateRepo, error) {
			return []domain.CandidateRepo{
				{ExternalID: "1", Name: "payments-api", Description: "billing service"},
				{ExternalID: "2", Name: "web-frontend", Description: "dashboard UI"},
				{ExternalID: "3", Name: "infra", Description: "Payments deploy scripts"},
			}, nil
		},
	}
	o := New(host, store.NewMemoryStore(), testIdentity(), WithItemDelay(0))
	if err := o.FetchCandidates(context.Background()); err != nil {
		t.Fatalf("FetchCandidates: %v", err)
	}

	got := o.Candidates("payments")
	if len(got) != 2 {
		t.Fatalf("Candidates(payments) = %d results, want 2", len(got))
	}
	if all := o.Candidates(""); len(all) != 3 {
		t.Fatalf("Candidates(\"\") = %d results, want 3", len(all))
	}
}

func TestFetchCandidatesRetryClearsError(t *testing.T) {
	fail := true
	host := &fakeHost{
		listFn: func(context.Context, *domain.Identity) ([]domain.CandidateRepo, error) {
			if fail {
				return nil, errors.New("rate limited")
			}
			return candidates(1), nil
		},
	}
	o := New(host, store.NewMemoryStore(), testIdentity(), WithItemDelay(0))

	if err := o.FetchCandidates(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if snap := o.Snapshot(); snap.Error == "" || snap.Step != StepSelecting {
		t.Fatalf("after failure: error=%q step=%s, want populated error in selecting", snap.Error, snap.Step)
	}

	fail = false
	if err := o.FetchCandidates(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	snap := o.Snapshot()
	if snap.Error != "" || len(snap.Candidates) != 1 {
		t.Fatalf("after retry: error=%q candidates=%d, want clean state", snap.Error, len(snap.Candidates))
	}
}
