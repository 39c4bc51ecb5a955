package port

import (
	"context"
	"fmt"

	"github.com/docsight/docsight/internal/domain"
)

// IdentityProvider abstracts the hosted identity service. Implementations
// drive the interactive sign-in flow and report identity changes to a
// registered listener.
type IdentityProvider interface {
	// SignInInteractive runs the provider's interactive sign-in flow and
	// returns the resulting identity and credential. Failures carry an
	// IdentityError code.
	SignInInteractive(ctx context.Context) (*domain.Identity, *domain.Credential, error)

	// SignOut clears the provider session.
	SignOut(ctx context.Context) error

	// OnIdentityChange registers fn to be invoked with the new identity
	// (nil on sign-out) whenever the authenticated identity changes.
	OnIdentityChange(fn func(*domain.Identity)) UnsubscribeFunc
}

// Identity provider error codes.
const (
	IdentityCodePopupClosed        = "popup-closed"
	IdentityCodePopupBlocked       = "popup-blocked"
	IdentityCodeConcurrentPopup    = "concurrent-popup"
	IdentityCodeUnauthorizedOrigin = "unauthorized-origin"
	IdentityCodeProviderDisabled   = "provider-disabled"
	IdentityCodeUnknown            = "unknown"
)

// IdentityError is a coded error from the identity provider.
type IdentityError struct {
	Code string
	Err  error
}

func (e *IdentityError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *IdentityError) Unwrap() error { return e.Err }
