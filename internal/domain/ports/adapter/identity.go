package adapter

import (
	"context"
	"time"
)

// Session describes an active identity-provider session.
type Session struct {
	UserID    string
	ExpiresAt time.Time
}

// IdentityAdapter is the port for session introspection and the
// sign-in redirect flow.
type IdentityAdapter interface {
	// CurrentSession returns the active session, or (nil, nil) when the
	// caller is signed out. An error means the check itself failed.
	CurrentSession(ctx context.Context) (*Session, error)

	// BeginSignIn starts the identity-provider redirect for the given
	// return destination and yields the provider URL the presentation
	// layer must navigate to.
	BeginSignIn(ctx context.Context, returnPath string) (string, error)
}
