package auth

import (
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	ProfileID *uuid.UUID
	Role      enums.Role
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients. ProfileID is
// carried alongside the identity id because downstream records (time tracking,
// course enrollment) key on the profile row, not the identity.
type AccessTokenClaims struct {
	UserID    uuid.UUID  `json:"user_id"`
	ProfileID *uuid.UUID `json:"profile_id,omitempty"`
	Role      enums.Role `json:"role"`
	jwt.RegisteredClaims
}
