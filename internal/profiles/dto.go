package profiles

import (
	"time"

	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
	dbtypes "github.com/dvillanueva/crewdesk-backend/pkg/db/types"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	"github.com/google/uuid"
)

// View is the read model handed to session consumers. It mirrors the profiles
// row one-to-one so a restored session sees exactly what the database holds.
type View struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Email       string            `json:"email"`
	FullName    string            `json:"full_name"`
	Role        enums.Role        `json:"role"`
	AvatarURL   *string           `json:"avatar_url,omitempty"`
	Phone       *string           `json:"phone,omitempty"`
	Skills      []string          `json:"skills"`
	Bio         *string           `json:"bio,omitempty"`
	Location    *string           `json:"location,omitempty"`
	Website     *string           `json:"website,omitempty"`
	SocialLinks map[string]string `json:"social_links"`
	IsActive    bool              `json:"is_active"`
	LastLoginAt *time.Time        `json:"last_login_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// FromModel converts a stored profile row into its read model.
func FromModel(p *models.Profile) *View {
	if p == nil {
		return nil
	}
	skills := make([]string, len(p.Skills))
	copy(skills, p.Skills)
	links := make(map[string]string, len(p.SocialLinks))
	for k, v := range p.SocialLinks {
		links[k] = v
	}
	return &View{
		ID:          p.ID,
		UserID:      p.UserID,
		Email:       p.Email,
		FullName:    p.FullName,
		Role:        p.Role,
		AvatarURL:   p.AvatarURL,
		Phone:       p.Phone,
		Skills:      skills,
		Bio:         p.Bio,
		Location:    p.Location,
		Website:     p.Website,
		SocialLinks: links,
		IsActive:    p.IsActive,
		LastLoginAt: p.LastLoginAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Clone returns a deep copy so optimistic merges never alias published state.
func (v *View) Clone() *View {
	if v == nil {
		return nil
	}
	out := *v
	out.Skills = make([]string, len(v.Skills))
	copy(out.Skills, v.Skills)
	out.SocialLinks = make(map[string]string, len(v.SocialLinks))
	for k, val := range v.SocialLinks {
		out.SocialLinks[k] = val
	}
	if v.AvatarURL != nil {
		av := *v.AvatarURL
		out.AvatarURL = &av
	}
	if v.Phone != nil {
		ph := *v.Phone
		out.Phone = &ph
	}
	if v.Bio != nil {
		b := *v.Bio
		out.Bio = &b
	}
	if v.Location != nil {
		loc := *v.Location
		out.Location = &loc
	}
	if v.Website != nil {
		w := *v.Website
		out.Website = &w
	}
	if v.LastLoginAt != nil {
		t := *v.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

// Changes carries a partial profile update. Nil fields are left untouched;
// the column list sent to the store contains only the fields that are set.
type Changes struct {
	FullName    *string            `json:"full_name,omitempty"`
	AvatarURL   *string            `json:"avatar_url,omitempty"`
	Phone       *string            `json:"phone,omitempty"`
	Skills      *[]string          `json:"skills,omitempty"`
	Bio         *string            `json:"bio,omitempty"`
	Location    *string            `json:"location,omitempty"`
	Website     *string            `json:"website,omitempty"`
	SocialLinks *map[string]string `json:"social_links,omitempty"`
}

// IsEmpty reports whether no field is set.
func (c Changes) IsEmpty() bool {
	return c.FullName == nil && c.AvatarURL == nil && c.Phone == nil &&
		c.Skills == nil && c.Bio == nil && c.Location == nil &&
		c.Website == nil && c.SocialLinks == nil
}

// Updates builds the column map persisted by the repository.
func (c Changes) Updates() map[string]any {
	updates := map[string]any{}
	if c.FullName != nil {
		updates["full_name"] = *c.FullName
	}
	if c.AvatarURL != nil {
		updates["avatar_url"] = c.AvatarURL
	}
	if c.Phone != nil {
		updates["phone"] = c.Phone
	}
	if c.Skills != nil {
		updates["skills"] = dbtypes.StringArray(*c.Skills)
	}
	if c.Bio != nil {
		updates["bio"] = c.Bio
	}
	if c.Location != nil {
		updates["location"] = c.Location
	}
	if c.Website != nil {
		updates["website"] = c.Website
	}
	if c.SocialLinks != nil {
		updates["social_links"] = dbtypes.JSONMap(*c.SocialLinks)
	}
	return updates
}

// ApplyTo merges the change set into a copy of the current view. UpdatedAt is
// stamped locally; the store's trigger will land the authoritative value on
// the next full fetch.
func (c Changes) ApplyTo(v *View, now time.Time) *View {
	merged := v.Clone()
	if merged == nil {
		return nil
	}
	if c.FullName != nil {
		merged.FullName = *c.FullName
	}
	if c.AvatarURL != nil {
		merged.AvatarURL = c.AvatarURL
	}
	if c.Phone != nil {
		merged.Phone = c.Phone
	}
	if c.Skills != nil {
		merged.Skills = append([]string(nil), (*c.Skills)...)
	}
	if c.Bio != nil {
		merged.Bio = c.Bio
	}
	if c.Location != nil {
		merged.Location = c.Location
	}
	if c.Website != nil {
		merged.Website = c.Website
	}
	if c.SocialLinks != nil {
		links := make(map[string]string, len(*c.SocialLinks))
		for k, val := range *c.SocialLinks {
			links[k] = val
		}
		merged.SocialLinks = links
	}
	merged.UpdatedAt = now
	return merged
}
