package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
)

func setupAccountsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

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
	require.NoError(t, db.Exec(users).Error)
	return db
}

func newUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "argon2id$stub",
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestRepositoryFindByEmail(t *testing.T) {
	db := setupAccountsTestDB(t)
	repo := NewRepository(db)

	created := newUser(t, db, "ops@example.com")

	found, err := repo.FindByEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.IsActive)

	_, err = repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryFindByID(t *testing.T) {
	db := setupAccountsTestDB(t)
	repo := NewRepository(db)

	created := newUser(t, db, "byid@example.com")

	found, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "byid@example.com", found.Email)

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryTouchLastLogin(t *testing.T) {
	db := setupAccountsTestDB(t)
	repo := NewRepository(db)

	created := newUser(t, db, "touch@example.com")
	require.Nil(t, created.LastLoginAt)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.TouchLastLogin(context.Background(), created.ID, at))

	found, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastLoginAt)
	assert.WithinDuration(t, at, *found.LastLoginAt, time.Second)
}
