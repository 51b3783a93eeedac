package models

import (
	"time"

	dbtypes "github.com/dvillanueva/crewdesk-backend/pkg/db/types"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile is the application-level record of a user's attributes, keyed to a
// User identity. Exactly one Profile exists per User; it is created at sign-up
// and never deleted by the session core.
type Profile struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID           `gorm:"type:uuid;column:user_id;not null;uniqueIndex"`
	Email       string              `gorm:"type:text;not null"`
	FullName    string              `gorm:"column:full_name;not null"`
	Role        enums.Role          `gorm:"type:text;column:role;not null"`
	AvatarURL   *string             `gorm:"column:avatar_url"`
	Phone       *string             `gorm:"column:phone"`
	Skills      dbtypes.StringArray `gorm:"type:text[];column:skills;not null;default:'{}'"`
	Bio         *string             `gorm:"column:bio"`
	Location    *string             `gorm:"column:location"`
	Website     *string             `gorm:"column:website"`
	SocialLinks dbtypes.JSONMap     `gorm:"type:jsonb;column:social_links;not null;default:'{}'"`
	IsActive    bool                `gorm:"column:is_active;not null;default:true"`
	LastLoginAt *time.Time          `gorm:"column:last_login_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the id client-side; sqlite has no gen_random_uuid().
func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
