package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvillanueva/crewdesk-backend/internal/identity"
	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	authsession "github.com/dvillanueva/crewdesk-backend/pkg/auth/session"
	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
	"github.com/dvillanueva/crewdesk-backend/pkg/metrics"
	"github.com/google/uuid"
)

// monitor is the inactivity watchdog surface the manager drives. Monitoring
// starts on every successful authentication and stops on sign-out.
type monitor interface {
	StartMonitoring()
	StopMonitoring()
}

// Navigator sends the operator to a destination screen. Sign-out always ends
// at the login entry point.
type Navigator interface {
	ToLogin(ctx context.Context)
}

type profileFetcher interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// ManagerParams wires the session manager dependencies.
type ManagerParams struct {
	Provider  identity.Provider
	Profiles  profileFetcher
	Tokens    authsession.TokenStore
	Monitor   monitor
	Navigator Navigator
	Metrics   *metrics.SessionMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Manager owns the authenticated-session state machine. It publishes a
// (User, Profile, Loading) tuple to subscribers on every transition and
// guarantees User and Profile are always set or cleared together.
//
// Exactly one lifecycle operation runs at a time; a second concurrent call
// fails fast with a state-conflict error. SignOut is exempt so a forced
// logout can always interrupt whatever else is in flight.
type Manager struct {
	provider identity.Provider
	profiles profileFetcher
	tokens   authsession.TokenStore
	monitor  monitor
	nav      Navigator
	metrics  *metrics.SessionMetrics
	logg     *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	state    State
	inFlight bool
	subs     map[int]func(State)
	nextSub  int
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile fetcher is required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if params.Monitor == nil {
		return nil, fmt.Errorf("inactivity monitor is required")
	}
	if params.Navigator == nil {
		return nil, fmt.Errorf("navigator is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		provider: params.Provider,
		profiles: params.Profiles,
		tokens:   params.Tokens,
		monitor:  params.Monitor,
		nav:      params.Navigator,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
		subs:     map[int]func(State){},
	}, nil
}

// State returns the currently published tuple. The pointers inside are shared
// with subscribers and must be treated as read-only.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a callback invoked synchronously on every state
// transition, and returns the matching unsubscribe function. Unsubscribing
// twice is harmless.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Initialize restores the session persisted from a previous run. Every
// outcome, including provider failures, lands in a settled state with
// Loading false; errors are logged, never returned. A restore arriving while
// another lifecycle operation is in flight is skipped instead of racing it,
// so a late restore can never clobber a fresh sign-in.
func (m *Manager) Initialize(ctx context.Context) {
	if err := m.begin(); err != nil {
		m.logg.Warn(ctx, "session restore skipped, another session operation is in progress")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logg.Error(ctx, "session restore panicked", fmt.Errorf("panic: %v", r))
			m.commitSignedOut()
		}
	}()
	defer m.end()

	m.setLoading(true)
	defer m.clearLoading()

	sess, err := m.provider.GetSession(ctx)
	if err != nil {
		m.logg.Warn(ctx, "session restore failed, treating as signed out")
		m.commitSignedOut()
		return
	}
	if sess == nil {
		m.commitSignedOut()
		return
	}

	ctx = m.logg.WithUserID(ctx, sess.IdentityID.String())
	profile, err := m.profiles.FindByUserID(ctx, sess.IdentityID)
	if err != nil {
		// A session without its profile row is unusable; drop it rather
		// than publish a half-populated state.
		m.logg.Error(ctx, "profile fetch failed during session restore", err)
		m.commitSignedOut()
		return
	}

	view := profiles.FromModel(profile)
	m.monitor.StartMonitoring()
	m.metrics.IncSignIn("restore")
	m.commit(State{User: buildUser(sess.IdentityID, view.Email, view), Profile: view})
	m.logg.Info(ctx, "session restored")
}

// SignIn authenticates the credentials and publishes the signed-in state.
func (m *Manager) SignIn(ctx context.Context, email, password string) (err error) {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.recoverToFailure(ctx, "sign-in", &err)
	defer m.end()

	m.setLoading(true)
	defer m.clearLoading()

	ident, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	view := m.resolveView(ctx, ident)
	m.monitor.StartMonitoring()
	m.metrics.IncSignIn("password")
	m.commit(State{User: buildUser(ident.ID, ident.Email, view), Profile: view})
	m.logg.Info(m.logg.WithUserID(ctx, ident.ID.String()), "signed in")
	return nil
}

// SignUp provisions a new account and publishes its signed-in state.
func (m *Manager) SignUp(ctx context.Context, params identity.SignUpParams) (err error) {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.recoverToFailure(ctx, "sign-up", &err)
	defer m.end()

	m.setLoading(true)
	defer m.clearLoading()

	ident, err := m.provider.SignUp(ctx, params)
	if err != nil {
		return err
	}

	view := m.resolveView(ctx, ident)
	m.monitor.StartMonitoring()
	m.metrics.IncSignIn("signup")
	m.commit(State{User: buildUser(ident.ID, ident.Email, view), Profile: view})
	m.logg.Info(m.logg.WithUserID(ctx, ident.ID.String()), "account created and signed in")
	return nil
}

// SignOut tears the session down: monitoring stops, the persisted token
// artifact is purged, the provider session is revoked, state clears, and the
// operator lands on the login screen. Each step runs even when an earlier one
// fails, so calling SignOut repeatedly, or when already signed out, converges
// on the same cleared state without error.
func (m *Manager) SignOut(ctx context.Context) {
	m.signOut(ctx, "manual")
}

// SignOutForInactivity is the forced-logout entry point used by the
// inactivity watchdog.
func (m *Manager) SignOutForInactivity(ctx context.Context) {
	m.signOut(ctx, "inactivity")
}

func (m *Manager) signOut(ctx context.Context, reason string) {
	m.setLoading(true)
	defer m.clearLoading()

	m.monitor.StopMonitoring()

	if err := m.tokens.Clear(ctx); err != nil {
		m.logg.Warn(ctx, "failed to purge persisted token artifact")
	}
	if err := m.provider.SignOut(ctx); err != nil {
		m.logg.Warn(ctx, "provider sign-out failed, clearing local state anyway")
	}

	m.mu.Lock()
	wasSignedIn := m.state.SignedIn()
	m.mu.Unlock()

	m.commit(State{})
	if wasSignedIn {
		m.metrics.IncSignOut(reason)
		m.logg.Info(ctx, fmt.Sprintf("signed out (%s)", reason))
	}
	m.nav.ToLogin(ctx)
}

// UpdateProfile persists a partial profile update and merges the accepted
// fields into the published state. Nothing is published until the store has
// accepted the write; on failure the previous state stands untouched.
func (m *Manager) UpdateProfile(ctx context.Context, changes profiles.Changes) (err error) {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.recoverToFailure(ctx, "profile update", &err)
	defer m.end()

	current := m.State()
	if current.Profile == nil {
		return pkgerrors.New(pkgerrors.CodeNoActiveProfile, "no active profile to update")
	}
	if current.Profile.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeNoActiveProfile, "profile row not yet loaded")
	}

	m.setLoading(true)
	defer m.clearLoading()

	if err := m.provider.UpdateProfile(ctx, current.Profile.ID, changes); err != nil {
		return err
	}

	merged := changes.ApplyTo(current.Profile, m.now())
	profileID := current.Profile.ID

	// A forced sign-out may have raced the store write. Only publish the
	// merge if the same profile is still signed in.
	m.publish(func(s State) (State, bool) {
		if s.Profile == nil || s.Profile.ID != profileID {
			return s, false
		}
		return State{
			User:    buildUser(s.User.ID, s.User.Email, merged),
			Profile: merged,
			Loading: s.Loading,
		}, true
	})
	return nil
}

func (m *Manager) resolveView(ctx context.Context, ident *identity.Identity) *profiles.View {
	if ident.Profile != nil {
		return ident.Profile
	}
	profile, err := m.profiles.FindByUserID(ctx, ident.ID)
	if err != nil {
		m.logg.Warn(ctx, "profile fetch failed after sign-in, using fallback view")
		return fallbackView(ident.ID, ident.Email)
	}
	return profiles.FromModel(profile)
}

// recoverToFailure converts a panic escaping a lifecycle operation into an
// internal error so callers see a failed operation, not a crashed process.
func (m *Manager) recoverToFailure(ctx context.Context, op string, err *error) {
	if r := recover(); r != nil {
		m.logg.Error(ctx, op+" panicked", fmt.Errorf("panic: %v", r))
		*err = pkgerrors.New(pkgerrors.CodeInternal, "session operation failed")
	}
}

// begin claims the single lifecycle-operation slot.
func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "another session operation is in progress")
	}
	m.inFlight = true
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
}

func (m *Manager) commit(next State) {
	m.publish(func(State) (State, bool) {
		return next, true
	})
}

func (m *Manager) commitSignedOut() {
	m.commit(State{})
}

func (m *Manager) setLoading(loading bool) {
	m.publish(func(s State) (State, bool) {
		if s.Loading == loading {
			return s, false
		}
		s.Loading = loading
		return s, true
	})
}

// clearLoading settles the bookend. Deferred by every lifecycle operation so
// Loading can never stick, even when the operation panics.
func (m *Manager) clearLoading() {
	m.setLoading(false)
}

// publish applies mutate under the lock and, when it commits, notifies every
// subscriber synchronously in registration order with the new tuple.
func (m *Manager) publish(mutate func(State) (State, bool)) {
	m.mu.Lock()
	next, ok := mutate(m.state)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.state = next
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	callbacks := make([]func(State), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, m.subs[id])
	}
	m.mu.Unlock()

	m.metrics.SetSessionActive(next.SignedIn())
	for _, fn := range callbacks {
		fn(next)
	}
}
