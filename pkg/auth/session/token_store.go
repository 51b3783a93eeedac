package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redisclient "github.com/dvillanueva/crewdesk-backend/pkg/redis"
	redislib "github.com/redis/go-redis/v9"
)

// TokenStore persists a device's current access token between restarts. It is
// the artifact the session core clears directly during sign-out so a stale
// token can never outlive the session it belonged to.
type TokenStore interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// ErrNoStoredToken signals that no token artifact is currently persisted.
var ErrNoStoredToken = errors.New("no stored token")

type kioskKeyer interface {
	KioskTokenKey(deviceID string) string
}

type redisTokenStore struct {
	store    sessionStore
	keyer    kioskKeyer
	deviceID string
}

// NewRedisTokenStore builds a TokenStore scoped to a single kiosk device.
// Tokens are stored without TTL; the JWT carries its own expiry and GetSession
// rejects expired tokens.
func NewRedisTokenStore(client *redisclient.Client, deviceID string) (TokenStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("device id is required")
	}
	return &redisTokenStore{store: client, keyer: client, deviceID: deviceID}, nil
}

func (s *redisTokenStore) Save(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	return s.store.Set(ctx, s.keyer.KioskTokenKey(s.deviceID), token, 0)
}

func (s *redisTokenStore) Load(ctx context.Context) (string, error) {
	token, err := s.store.Get(ctx, s.keyer.KioskTokenKey(s.deviceID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", ErrNoStoredToken
		}
		return "", err
	}
	return token, nil
}

func (s *redisTokenStore) Clear(ctx context.Context) error {
	return s.store.Del(ctx, s.keyer.KioskTokenKey(s.deviceID))
}
