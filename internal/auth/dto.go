package auth

import (
	"time"

	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	"github.com/google/uuid"
)

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest captures the fields collected at registration. Phone and
// Role are optional; a blank role defaults to the least-privileged one.
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	FullName string  `json:"full_name" validate:"required"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Role     string  `json:"role,omitempty"`
}

// RefreshRequest carries the expired access token plus the refresh token that
// proves session ownership.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UserSummary is the identity shape returned by auth endpoints.
type UserSummary struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// AuthResponse contains the token pair plus the authenticated user and
// profile produced by a successful login or registration.
type AuthResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *UserSummary   `json:"user"`
	Profile      *profiles.View `json:"profile,omitempty"`
	Role         enums.Role     `json:"role"`
}

// TokenPairResponse is the rotated pair returned by the refresh endpoint.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func userSummary(user *models.User) *UserSummary {
	if user == nil {
		return nil
	}
	return &UserSummary{
		ID:          user.ID,
		Email:       user.Email,
		LastLoginAt: user.LastLoginAt,
	}
}
