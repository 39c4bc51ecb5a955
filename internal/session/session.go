// Package session holds the authenticated identity for the process and the
// sign-in/sign-out flow around the identity provider.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

// upsertTimeout bounds the background profile write after an identity change.
const upsertTimeout = 15 * time.Second

// Manager tracks the current identity and exposes sign-in/sign-out. It is
// constructor-injected wherever a session is needed; there is no ambient
// global state. Exactly one identity-change listener is registered at
// construction and released by Close.
type Manager struct {
	provider port.IdentityProvider
	store    port.DocumentStore

	mu        sync.RWMutex
	identity  *domain.Identity
	loading   bool
	lastErr   string
	signingIn bool

	unsub     port.UnsubscribeFunc
	closeOnce sync.Once

	// upsert is swapped out in tests.
	upsert func(ctx context.Context, store port.DocumentStore, identity *domain.Identity) error
}

// NewManager creates a session manager and registers its identity-change
// listener with the provider.
func NewManager(provider port.IdentityProvider, store port.DocumentStore) *Manager {
	m := &Manager{
		provider: provider,
		store:    store,
		loading:  true,
		upsert:   UpsertProfile,
	}
	m.unsub = provider.OnIdentityChange(m.handleIdentityChange)
	return m
}

// handleIdentityChange updates the session state synchronously, then kicks
// off the profile upsert as a fire-and-forget side effect. The upsert can
// never change the current identity or block the caller. While SignIn is in
// flight the upsert is skipped: the interactive path runs its own.
func (m *Manager) handleIdentityChange(identity *domain.Identity) {
	m.mu.Lock()
	m.identity = identity
	m.loading = false
	local := m.signingIn
	m.mu.Unlock()

	if identity == nil || local {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), upsertTimeout)
		defer cancel()
		if err := m.upsert(ctx, m.store, identity); err != nil {
			slog.Error("profile upsert failed", "uid", identity.UID, "error", err)
		}
	}()
}

// SignIn runs the provider's interactive flow. Provider failures are mapped
// to stable user-displayable messages and recorded in LastError. A profile
// upsert failure after a successful sign-in is returned to the caller but
// leaves the identity in place.
func (m *Manager) SignIn(ctx context.Context) (*domain.Identity, error) {
	m.mu.Lock()
	m.loading = true
	m.lastErr = ""
	m.signingIn = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.signingIn = false
		m.mu.Unlock()
	}()

	identity, _, err := m.provider.SignInInteractive(ctx)
	if err != nil {
		msg := SignInErrorMessage(err)
		m.mu.Lock()
		m.loading = false
		m.lastErr = msg
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	m.mu.Lock()
	m.identity = identity
	m.loading = false
	m.lastErr = ""
	m.mu.Unlock()

	slog.Info("user signed in", "uid", identity.UID, "email", identity.Email)

	if err := m.upsert(ctx, m.store, identity); err != nil {
		return identity, fmt.Errorf("profile upsert: %w", err)
	}
	return identity, nil
}

// SignOut clears the provider session and the current identity.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		m.mu.Lock()
		m.lastErr = "Failed to sign out"
		m.mu.Unlock()
		return fmt.Errorf("sign out: %w", err)
	}

	m.mu.Lock()
	m.identity = nil
	m.lastErr = ""
	m.mu.Unlock()

	slog.Info("user signed out")
	return nil
}

// CurrentIdentity returns the authenticated identity, or nil.
func (m *Manager) CurrentIdentity() *domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return nil
	}
	copied := *m.identity
	return &copied
}

// IsLoading reports whether a sign-in is in flight or the initial identity
// has not been resolved yet.
func (m *Manager) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// LastError returns the last user-displayable sign-in/sign-out error, or "".
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Close releases the identity-change listener. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.unsub != nil {
			m.unsub()
		}
	})
}

// signInMessages maps provider error codes to stable, user-displayable
// messages.
var signInMessages = map[string]string{
	port.IdentityCodePopupClosed:        "Sign-in popup was closed before completing authentication",
	port.IdentityCodePopupBlocked:       "Popup was blocked by your browser. Please allow popups for this site.",
	port.IdentityCodeConcurrentPopup:    "Another sign-in popup is already open",
	port.IdentityCodeUnauthorizedOrigin: "This domain is not authorized for sign-in",
	port.IdentityCodeProviderDisabled:   "GitHub authentication is not enabled for this project",
	port.IdentityCodeUnknown:            "An unexpected error occurred during sign-in",
}

const signInFallback = "Failed to sign in. Please try again."

// SignInErrorMessage maps a provider error to its displayable message. An
// unrecognized code falls back to a generic message instead of failing.
func SignInErrorMessage(err error) string {
	var identityErr *port.IdentityError
	if errors.As(err, &identityErr) {
		if msg, ok := signInMessages[identityErr.Code]; ok {
			return msg
		}
	}
	return signInFallback
}
