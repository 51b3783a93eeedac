package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvillanueva/crewdesk-backend/internal/accounts"
	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	pkgAuth "github.com/dvillanueva/crewdesk-backend/pkg/auth"
	"github.com/dvillanueva/crewdesk-backend/pkg/auth/session"
	"github.com/dvillanueva/crewdesk-backend/pkg/config"
	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"github.com/dvillanueva/crewdesk-backend/pkg/security"
	"github.com/google/uuid"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controllers.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*TokenPairResponse, error)
	Logout(ctx context.Context, accessID string) error
}

type service struct {
	users    userRepository
	profiles profileRepository
	creator  accountCreator
	session  sessionManager
	jwtCfg   config.JWTConfig
	pwCfg    config.PasswordConfig

	verify func(password, encoded string) (bool, error)
	hash   func(password string, cfg config.PasswordConfig) (string, error)
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type profileRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type accountCreator interface {
	CreateAccount(ctx context.Context, params accounts.CreateParams) (*models.User, *models.Profile, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	ProfileRepo    profileRepository
	Creator        accountCreator
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig

	// Test seams; production wiring leaves these nil.
	VerifyPassword func(password, encoded string) (bool, error)
	HashPassword   func(password string, cfg config.PasswordConfig) (string, error)
}

// NewService constructs an auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.ProfileRepo == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if params.Creator == nil {
		return nil, fmt.Errorf("account creator is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	svc := &service{
		users:    params.UserRepo,
		profiles: params.ProfileRepo,
		creator:  params.Creator,
		session:  params.SessionManager,
		jwtCfg:   params.JWTConfig,
		pwCfg:    params.PasswordConfig,
		verify:   params.VerifyPassword,
		hash:     params.HashPassword,
	}
	if svc.verify == nil {
		svc.verify = security.VerifyPassword
	}
	if svc.hash == nil {
		svc.hash = security.HashPassword
	}
	return svc, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	role := enums.DefaultRole
	var view *profiles.View
	var profileID *uuid.UUID
	if profile, perr := s.profiles.FindByUserID(ctx, user.ID); perr == nil {
		role = profile.Role
		view = profiles.FromModel(profile)
		id := profile.ID
		profileID = &id
	} else if !errors.Is(perr, profiles.ErrNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, perr, "lookup profile")
	}

	now, err := s.recordLogin(ctx, user)
	if err != nil {
		return nil, err
	}

	accessToken, refreshToken, err := s.issueTokens(ctx, now, pkgAuth.AccessTokenPayload{
		UserID:    user.ID,
		ProfileID: profileID,
		Role:      role,
	})
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userSummary(user),
		Profile:      view,
		Role:         role,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	role := enums.DefaultRole
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := enums.ParseRole(req.Role)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
		}
		role = parsed
	}

	hashed, err := s.hash(req.Password, s.pwCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user, profile, err := s.creator.CreateAccount(ctx, accounts.CreateParams{
		Email:        req.Email,
		PasswordHash: hashed,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	profileID := profile.ID
	accessToken, refreshToken, err := s.issueTokens(ctx, time.Now().UTC(), pkgAuth.AccessTokenPayload{
		UserID:    user.ID,
		ProfileID: &profileID,
		Role:      profile.Role,
	})
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userSummary(user),
		Profile:      profiles.FromModel(profile),
		Role:         profile.Role,
	}, nil
}

func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*TokenPairResponse, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, req.AccessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	newAccessID, newRefreshToken, err := s.session.Rotate(ctx, claims.ID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, time.Now().UTC(), pkgAuth.AccessTokenPayload{
		UserID:    claims.UserID,
		ProfileID: claims.ProfileID,
		Role:      claims.Role,
		JTI:       newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	return &TokenPairResponse{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := strings.TrimSpace(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, strings.ToLower(input))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, err := s.verify(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, nil
}

func (s *service) recordLogin(ctx context.Context, user *models.User) (time.Time, error) {
	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	if err := s.profiles.TouchLastLogin(ctx, user.ID, now); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile last login")
	}
	user.LastLoginAt = &now
	return now, nil
}

func (s *service) issueTokens(ctx context.Context, now time.Time, payload pkgAuth.AccessTokenPayload) (string, string, error) {
	accessID := session.NewAccessID()
	payload.JTI = accessID

	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, payload)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.session.Generate(ctx, accessID)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}
	return accessToken, refreshToken, nil
}
