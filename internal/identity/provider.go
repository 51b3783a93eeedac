package identity

import (
	"context"
	"time"

	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	"github.com/google/uuid"
)

// Session describes a live authenticated session as the provider sees it.
type Session struct {
	IdentityID uuid.UUID
	ProfileID  *uuid.UUID
	Role       enums.Role
	AccessID   string
	ExpiresAt  time.Time
}

// Identity is the authenticated subject returned by credential operations.
// Profile is populated on sign-up, where the provider created the row itself
// and a re-fetch would only race replication.
type Identity struct {
	ID          uuid.UUID
	Email       string
	AccessToken string
	Profile     *profiles.View
}

// SignUpParams carries the fields collected at registration. Phone and Role
// are optional; a blank role defaults to the least-privileged one.
type SignUpParams struct {
	Email    string
	Password string
	FullName string
	Phone    *string
	Role     enums.Role
}

// Provider is the authentication backend surface the session core depends on.
// All calls are remote-ish (database, token cache) and return wrapped errors;
// callers decide which failures are fatal for the session.
type Provider interface {
	// GetSession reports the current session, or (nil, nil) when signed out.
	GetSession(ctx context.Context) (*Session, error)
	// SignIn authenticates credentials and establishes a session.
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	// SignUp provisions a new account and establishes a session for it.
	SignUp(ctx context.Context, params SignUpParams) (*Identity, error)
	// SignOut revokes the current session. Safe to call when signed out.
	SignOut(ctx context.Context) error
	// UpdateProfile persists a partial profile update.
	UpdateProfile(ctx context.Context, profileID uuid.UUID, changes profiles.Changes) error
}
