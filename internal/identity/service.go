package identity

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvillanueva/crewdesk-backend/internal/accounts"
	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/pkg/auth"
	"github.com/dvillanueva/crewdesk-backend/pkg/auth/session"
	"github.com/dvillanueva/crewdesk-backend/pkg/config"
	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
	"github.com/dvillanueva/crewdesk-backend/pkg/security"
	"github.com/google/uuid"
)

const minPasswordLength = 8

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type profileStore interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type accountCreator interface {
	CreateAccount(ctx context.Context, params accounts.CreateParams) (*models.User, *models.Profile, error)
}

type refreshSessions interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Revoke(ctx context.Context, accessID string) error
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type passwordVerifier func(password, encoded string) (bool, error)
type passwordHasher func(password string, cfg config.PasswordConfig) (string, error)

// ServiceParams wires the identity service dependencies.
type ServiceParams struct {
	Users    userStore
	Profiles profileStore
	Creator  accountCreator
	Sessions refreshSessions
	Tokens   session.TokenStore
	JWT      config.JWTConfig
	Password config.PasswordConfig
	Logger   *logger.Logger

	// Test seams; production wiring leaves these nil.
	VerifyPassword passwordVerifier
	HashPassword   passwordHasher
	Now            func() time.Time
}

// Service implements Provider on top of the relational identity store and the
// Redis-backed session records.
type Service struct {
	users    userStore
	profiles profileStore
	creator  accountCreator
	sessions refreshSessions
	tokens   session.TokenStore
	jwtCfg   config.JWTConfig
	pwCfg    config.PasswordConfig
	logg     *logger.Logger

	verify passwordVerifier
	hash   passwordHasher
	now    func() time.Time
}

var _ Provider = (*Service)(nil)

func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("users store is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profiles store is required")
	}
	if params.Creator == nil {
		return nil, fmt.Errorf("account creator is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	svc := &Service{
		users:    params.Users,
		profiles: params.Profiles,
		creator:  params.Creator,
		sessions: params.Sessions,
		tokens:   params.Tokens,
		jwtCfg:   params.JWT,
		pwCfg:    params.Password,
		logg:     params.Logger,
		verify:   params.VerifyPassword,
		hash:     params.HashPassword,
		now:      params.Now,
	}
	if svc.verify == nil {
		svc.verify = security.VerifyPassword
	}
	if svc.hash == nil {
		svc.hash = security.HashPassword
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

// GetSession inspects the persisted token artifact and the Redis session
// record. A missing, malformed, or expired artifact reads as signed out, not
// as an error; only transport failures surface to the caller.
func (s *Service) GetSession(ctx context.Context) (*Session, error) {
	token, err := s.tokens.Load(ctx)
	if stdErrors.Is(err, session.ErrNoStoredToken) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading stored token")
	}

	claims, err := auth.ParseAccessToken(s.jwtCfg, token)
	if err != nil {
		// Stale or tampered artifact. Drop it so the next restore is clean.
		if clearErr := s.tokens.Clear(ctx); clearErr != nil {
			s.logg.Warn(ctx, "failed to clear stale token artifact")
		}
		return nil, nil
	}

	active, err := s.sessions.HasSession(ctx, claims.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking session record")
	}
	if !active {
		if clearErr := s.tokens.Clear(ctx); clearErr != nil {
			s.logg.Warn(ctx, "failed to clear revoked token artifact")
		}
		return nil, nil
	}

	out := &Session{
		IdentityID: claims.UserID,
		ProfileID:  claims.ProfileID,
		Role:       claims.Role,
		AccessID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// SignIn verifies credentials, records the session, and persists the token
// artifact. The profile row is consulted only for the role and profile-id
// claims; a missing row does not fail the sign-in.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if stdErrors.Is(err, accounts.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "looking up user")
	}

	match, err := s.verify(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verifying password")
	}
	if !match {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account disabled")
	}

	role := enums.DefaultRole
	var profileID *uuid.UUID
	if profile, perr := s.profiles.FindByUserID(ctx, user.ID); perr == nil {
		role = profile.Role
		id := profile.ID
		profileID = &id
	} else if !stdErrors.Is(perr, profiles.ErrNotFound) {
		s.logg.Warn(ctx, "profile lookup failed during sign-in")
	}

	token, err := s.establishSession(ctx, auth.AccessTokenPayload{
		UserID:    user.ID,
		ProfileID: profileID,
		Role:      role,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logg.Warn(ctx, "failed to stamp user last login")
	}
	if err := s.profiles.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logg.Warn(ctx, "failed to stamp profile last login")
	}

	return &Identity{ID: user.ID, Email: user.Email, AccessToken: token}, nil
}

// SignUp provisions the account and signs the new identity in. The created
// profile rides back on the Identity so callers skip the restore fetch.
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*Identity, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(params.Password) < minPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if strings.TrimSpace(params.FullName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name is required")
	}

	hashed, err := s.hash(params.Password, s.pwCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing password")
	}

	user, profile, err := s.creator.CreateAccount(ctx, accounts.CreateParams{
		Email:        email,
		PasswordHash: hashed,
		FullName:     params.FullName,
		Phone:        params.Phone,
		Role:         params.Role,
	})
	if err != nil {
		return nil, err
	}

	id := profile.ID
	token, err := s.establishSession(ctx, auth.AccessTokenPayload{
		UserID:    user.ID,
		ProfileID: &id,
		Role:      profile.Role,
	})
	if err != nil {
		return nil, err
	}

	return &Identity{
		ID:          user.ID,
		Email:       user.Email,
		AccessToken: token,
		Profile:     profiles.FromModel(profile),
	}, nil
}

// SignOut revokes the session record and removes the token artifact. Calling
// it with nothing stored is a no-op.
func (s *Service) SignOut(ctx context.Context) error {
	token, err := s.tokens.Load(ctx)
	if stdErrors.Is(err, session.ErrNoStoredToken) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading stored token")
	}

	claims, parseErr := auth.ParseAccessTokenAllowExpired(s.jwtCfg, token)
	if parseErr == nil {
		if err := s.sessions.Revoke(ctx, claims.ID); err != nil {
			// Still clear the artifact; an orphaned record expires on its own TTL.
			if clearErr := s.tokens.Clear(ctx); clearErr != nil {
				s.logg.Warn(ctx, "failed to clear token artifact after revoke failure")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoking session")
		}
	}

	if err := s.tokens.Clear(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing token artifact")
	}
	return nil
}

// UpdateProfile persists a partial update to one profile row.
func (s *Service) UpdateProfile(ctx context.Context, profileID uuid.UUID, changes profiles.Changes) error {
	if profileID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	if changes.IsEmpty() {
		return pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}
	if err := s.profiles.UpdateFields(ctx, profileID, changes.Updates()); err != nil {
		if stdErrors.Is(err, profiles.ErrNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "profile not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating profile")
	}
	return nil
}

func (s *Service) establishSession(ctx context.Context, payload auth.AccessTokenPayload) (string, error) {
	accessID := session.NewAccessID()
	payload.JTI = accessID

	token, err := auth.MintAccessToken(s.jwtCfg, s.now(), payload)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting access token")
	}
	if _, err := s.sessions.Generate(ctx, accessID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording session")
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		if revokeErr := s.sessions.Revoke(ctx, accessID); revokeErr != nil {
			s.logg.Warn(ctx, "failed to revoke session after save failure")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting token artifact")
	}
	return token, nil
}
