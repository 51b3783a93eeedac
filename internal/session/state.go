package session

import (
	"strings"

	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	"github.com/google/uuid"
)

// User is the identity projection published to session consumers. Name and
// FullName carry the same value; both survive because screens written against
// the older field name still read Name.
type User struct {
	ID        uuid.UUID  `json:"id"`
	ProfileID *uuid.UUID `json:"profile_id,omitempty"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	FullName  string     `json:"full_name"`
	Role      enums.Role `json:"role"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
}

// State is the tuple published on every transition. User and Profile are set
// and cleared together; Loading brackets every lifecycle operation.
type State struct {
	User    *User          `json:"user"`
	Profile *profiles.View `json:"profile"`
	Loading bool           `json:"loading"`
}

// SignedIn reports whether the state holds an authenticated session.
func (s State) SignedIn() bool {
	return s.User != nil
}

func buildUser(identityID uuid.UUID, email string, view *profiles.View) *User {
	user := &User{
		ID:    identityID,
		Email: email,
		Role:  enums.DefaultRole,
	}
	if view == nil {
		return user
	}
	if view.ID != uuid.Nil {
		id := view.ID
		user.ProfileID = &id
	}
	user.Name = view.FullName
	user.FullName = view.FullName
	user.Role = view.Role
	user.AvatarURL = view.AvatarURL
	if user.Email == "" {
		user.Email = view.Email
	}
	return user
}

// fallbackView stands in when the profile read fails after a successful
// authentication. It keeps the user/profile pairing intact but carries no row
// id, so profile updates are rejected until a real row is seen.
func fallbackView(identityID uuid.UUID, email string) *profiles.View {
	name := email
	if at := strings.Index(email, "@"); at > 0 {
		name = email[:at]
	}
	return &profiles.View{
		UserID:      identityID,
		Email:       email,
		FullName:    name,
		Role:        enums.DefaultRole,
		Skills:      []string{},
		SocialLinks: map[string]string{},
		IsActive:    true,
	}
}
