package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/pkg/config"
	"github.com/dvillanueva/crewdesk-backend/pkg/db"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
)

func setupCreatorTestDB(t *testing.T) *db.Client {
	t.Helper()

	client, err := db.New(context.Background(), config.DBConfig{DSN: "file::memory:?cache=shared"}, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	users := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, client.DB().Exec(users).Error)

	profilesDDL := `
CREATE TABLE IF NOT EXISTS profiles (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL,
  full_name TEXT NOT NULL,
  role TEXT NOT NULL,
  avatar_url TEXT,
  phone TEXT,
  skills TEXT NOT NULL DEFAULT '{}',
  bio TEXT,
  location TEXT,
  website TEXT,
  social_links TEXT NOT NULL DEFAULT '{}',
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, client.DB().Exec(profilesDDL).Error)
	return client
}

func TestCreateAccountPersistsPair(t *testing.T) {
	client := setupCreatorTestDB(t)
	creator, err := NewCreator(client)
	require.NoError(t, err)

	phone := "  +34 600 123 456  "
	user, profile, err := creator.CreateAccount(context.Background(), CreateParams{
		Email:        "Pair@CrewDesk.io",
		PasswordHash: "argon2id$stub",
		FullName:     "Noa Reyes",
		Phone:        &phone,
		Role:         enums.RoleInstructor,
	})
	require.NoError(t, err)

	assert.Equal(t, "pair@crewdesk.io", user.Email)
	assert.Equal(t, user.ID, profile.UserID)
	assert.Equal(t, enums.RoleInstructor, profile.Role)
	require.NotNil(t, profile.Phone)
	assert.Equal(t, "+34 600 123 456", *profile.Phone)

	stored, err := profiles.NewRepository(client.DB()).FindByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Phone)
	assert.Equal(t, "+34 600 123 456", *stored.Phone)
}

func TestCreateAccountBlankPhoneStoredAsNull(t *testing.T) {
	client := setupCreatorTestDB(t)
	creator, err := NewCreator(client)
	require.NoError(t, err)

	blank := "   "
	_, profile, err := creator.CreateAccount(context.Background(), CreateParams{
		Email:        "nophone@crewdesk.io",
		PasswordHash: "argon2id$stub",
		FullName:     "Iris Vale",
		Phone:        &blank,
	})
	require.NoError(t, err)
	assert.Nil(t, profile.Phone)
	assert.Equal(t, enums.DefaultRole, profile.Role)
}

func TestCreateAccountDuplicateEmailConflicts(t *testing.T) {
	client := setupCreatorTestDB(t)
	creator, err := NewCreator(client)
	require.NoError(t, err)

	params := CreateParams{
		Email:        "dup@crewdesk.io",
		PasswordHash: "argon2id$stub",
		FullName:     "First In",
	}
	_, _, err = creator.CreateAccount(context.Background(), params)
	require.NoError(t, err)

	_, _, err = creator.CreateAccount(context.Background(), params)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "expected conflict, got %v", err)
}
