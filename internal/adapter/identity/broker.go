// Package identity adapts the hosted identity broker to the
// port.IdentityProvider contract. The broker runs the interactive sign-in
// flow and reports either an identity or a coded failure.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

// brokerCodes maps the broker's wire codes to stable provider codes. The
// wire codes follow the hosted service's auth/* convention.
var brokerCodes = map[string]string{
	"auth/popup-closed-by-user":    port.IdentityCodePopupClosed,
	"auth/popup-blocked":           port.IdentityCodePopupBlocked,
	"auth/cancelled-popup-request": port.IdentityCodeConcurrentPopup,
	"auth/unauthorized-domain":     port.IdentityCodeUnauthorizedOrigin,
	"auth/operation-not-allowed":   port.IdentityCodeProviderDisabled,
}

// Broker implements port.IdentityProvider over the broker's REST API and
// keeps a process-local registry of identity-change listeners.
type Broker struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	listeners map[int]func(*domain.Identity)
	nextID    int
	current   *domain.Identity
}

// NewBroker creates an identity broker client.
func NewBroker(baseURL string) *Broker {
	return &Broker{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		listeners:  make(map[int]func(*domain.Identity)),
	}
}

type signInResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	Provider    string `json:"provider"`
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInInteractive asks the broker to run the interactive flow. Broker
// failure codes are converted into coded IdentityErrors; everything else
// maps to the unknown code.
func (b *Broker) SignInInteractive(ctx context.Context) (*domain.Identity, *domain.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/v1/accounts:signInInteractive", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, nil, identityErr(port.IdentityCodeUnknown, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, nil, identityErr(port.IdentityCodeUnknown, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body signInResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, nil, identityErr(port.IdentityCodeUnknown, fmt.Errorf("decode sign-in response: %w", err))
	}

	if body.Error != nil {
		code, ok := brokerCodes[body.Error.Code]
		if !ok {
			code = port.IdentityCodeUnknown
		}
		return nil, nil, identityErr(code, fmt.Errorf("%s: %s", body.Error.Code, body.Error.Message))
	}
	if resp.StatusCode != http.StatusOK || body.UID == "" {
		return nil, nil, identityErr(port.IdentityCodeUnknown, fmt.Errorf("sign-in failed (%d)", resp.StatusCode))
	}

	identity := &domain.Identity{
		UID:         body.UID,
		Email:       body.Email,
		DisplayName: body.DisplayName,
		PhotoURL:    body.PhotoURL,
		Provider:    body.Provider,
		AccessToken: body.AccessToken,
	}
	credential := &domain.Credential{AccessToken: body.AccessToken, TokenType: body.TokenType}

	b.emit(identity)
	return identity, credential, nil
}

// SignOut clears the broker session and notifies listeners with nil.
func (b *Broker) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/v1/accounts:signOut", nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("sign out: status %d", resp.StatusCode)
	}

	b.emit(nil)
	return nil
}

// OnIdentityChange registers fn and immediately invokes it with the current
// identity, nil when no session exists. Without that replay a listener
// registered at startup would wait on an interactive sign-in that may never
// come. The returned unsubscribe is idempotent.
func (b *Broker) OnIdentityChange(fn func(*domain.Identity)) port.UnsubscribeFunc {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	current := b.current
	b.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func (b *Broker) emit(identity *domain.Identity) {
	b.mu.Lock()
	b.current = identity
	fns := make([]func(*domain.Identity), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(identity)
	}
}

func identityErr(code string, err error) error {
	return &port.IdentityError{Code: code, Err: err}
}
