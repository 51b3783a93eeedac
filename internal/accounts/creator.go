package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/pkg/db"
	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
	dbtypes "github.com/dvillanueva/crewdesk-backend/pkg/db/types"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"gorm.io/gorm"
)

// CreateParams carries everything needed to provision an identity plus its
// paired profile row in one transaction.
type CreateParams struct {
	Email        string
	PasswordHash string
	FullName     string
	Phone        *string
	Role         enums.Role
}

// Creator provisions user + profile pairs. Both rows commit together so a
// session can never observe an identity without its profile.
type Creator struct {
	client *db.Client
}

func NewCreator(client *db.Client) (*Creator, error) {
	if client == nil {
		return nil, fmt.Errorf("db client is required")
	}
	return &Creator{client: client}, nil
}

// CreateAccount inserts the users row and its profiles row atomically.
// A duplicate email maps to a conflict error.
func (c *Creator) CreateAccount(ctx context.Context, params CreateParams) (*models.User, *models.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if params.PasswordHash == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "password hash is required")
	}
	role := params.Role
	if role == "" {
		role = enums.DefaultRole
	}
	if !role.IsValid() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", role))
	}

	user := &models.User{
		Email:        email,
		PasswordHash: params.PasswordHash,
		IsActive:     true,
	}
	var phone *string
	if params.Phone != nil {
		if p := strings.TrimSpace(*params.Phone); p != "" {
			phone = &p
		}
	}

	profile := &models.Profile{
		Email:       email,
		FullName:    strings.TrimSpace(params.FullName),
		Phone:       phone,
		Role:        role,
		Skills:      dbtypes.StringArray{},
		SocialLinks: dbtypes.JSONMap{},
		IsActive:    true,
	}

	err := c.client.WithTx(ctx, func(tx *gorm.DB) error {
		users := NewRepository(tx)
		if err := users.Create(ctx, user); err != nil {
			if db.IsUniqueViolation(err, "users_email") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating user")
		}
		profile.UserID = user.ID
		if err := profiles.NewRepository(tx).Create(ctx, profile); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating profile")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return user, profile, nil
}
