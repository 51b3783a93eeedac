package inactivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvillanueva/crewdesk-backend/internal/identity"
	authsession "github.com/dvillanueva/crewdesk-backend/pkg/auth/session"
	"github.com/dvillanueva/crewdesk-backend/pkg/config"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
	"github.com/dvillanueva/crewdesk-backend/pkg/metrics"
)

// State is the watchdog phase for the current arming cycle.
type State int

const (
	// StateIdle means monitoring is off; interaction events are ignored.
	StateIdle State = iota
	// StateArmed means the countdown is running from the last activity.
	StateArmed
	// StateWarned means the warning threshold passed without activity.
	StateWarned
	// StateExpired means the timeout fired and a forced logout ran.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateWarned:
		return "warned"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Interaction event kinds that reset the countdown.
const (
	EventPointerDown = "pointerdown"
	EventPointerMove = "pointermove"
	EventKeyDown     = "keydown"
	EventScroll      = "scroll"
	EventTouchStart  = "touchstart"
	EventClick       = "click"
)

var eventKinds = map[string]struct{}{
	EventPointerDown: {},
	EventPointerMove: {},
	EventKeyDown:     {},
	EventScroll:      {},
	EventTouchStart:  {},
	EventClick:       {},
}

// ValidEventKind reports whether kind is one of the tracked interactions.
func ValidEventKind(kind string) bool {
	_, ok := eventKinds[kind]
	return ok
}

type identityClient interface {
	GetSession(ctx context.Context) (*identity.Session, error)
	SignOut(ctx context.Context) error
}

// Navigator routes the operator to a destination screen.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

// GuardParams wires the inactivity guard dependencies.
type GuardParams struct {
	Identity  identityClient
	Tokens    authsession.TokenStore
	Navigator Navigator
	Session   config.SessionConfig
	LoginPath string
	Metrics   *metrics.SessionMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Guard is the inactivity watchdog. Once armed it measures both thresholds
// from the same last-activity instant: the warning fires first, then the
// timeout forces a logout. Any tracked interaction before the timeout resets
// the full countdown, including after the warning has fired.
type Guard struct {
	ident   identityClient
	tokens  authsession.TokenStore
	nav     Navigator
	warn    time.Duration
	expire  time.Duration
	login   string
	metrics *metrics.SessionMetrics
	logg    *logger.Logger
	now     func() time.Time

	mu           sync.Mutex
	state        State
	gen          uint64
	lastActivity time.Time
	warnTimer    *time.Timer
	expireTimer  *time.Timer
	onWarn       func(ctx context.Context, remaining time.Duration)
	onExpire     func(ctx context.Context)
}

func NewGuard(params GuardParams) (*Guard, error) {
	if params.Identity == nil {
		return nil, fmt.Errorf("identity client is required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if params.Navigator == nil {
		return nil, fmt.Errorf("navigator is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := params.Session.Validate(); err != nil {
		return nil, err
	}
	login := params.LoginPath
	if login == "" {
		login = "/login"
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Guard{
		ident:   params.Identity,
		tokens:  params.Tokens,
		nav:     params.Navigator,
		warn:    params.Session.InactivityWarning,
		expire:  params.Session.InactivityTimeout,
		login:   login,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
		state:   StateIdle,
	}, nil
}

// SetWarningHandler registers the callback fired when the warning threshold
// passes. It receives the time remaining before forced logout.
func (g *Guard) SetWarningHandler(fn func(ctx context.Context, remaining time.Duration)) {
	g.mu.Lock()
	g.onWarn = fn
	g.mu.Unlock()
}

// SetExpiryHandler registers the forced-logout callback. When unset the guard
// falls back to its own SignOut.
func (g *Guard) SetExpiryHandler(fn func(ctx context.Context)) {
	g.mu.Lock()
	g.onExpire = fn
	g.mu.Unlock()
}

// State returns the current watchdog phase.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// LastActivity returns the instant both thresholds are measured from.
func (g *Guard) LastActivity() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastActivity
}

// StartMonitoring arms the countdown. Calling it while already armed resets
// the countdown rather than stacking a second one.
func (g *Guard) StartMonitoring() {
	g.mu.Lock()
	g.rearmLocked()
	g.mu.Unlock()
}

// StopMonitoring cancels the countdown and returns to idle. It never touches
// session state; tearing the session down is the caller's move.
func (g *Guard) StopMonitoring() {
	g.mu.Lock()
	g.disarmLocked()
	g.state = StateIdle
	g.mu.Unlock()
}

// Activity records a tracked interaction. While armed (or warned) it resets
// the full countdown; while idle it is ignored so background chatter cannot
// arm the watchdog on a signed-out device.
func (g *Guard) Activity(ctx context.Context, kind string) error {
	if !ValidEventKind(kind) {
		return fmt.Errorf("unknown interaction kind %q", kind)
	}

	g.mu.Lock()
	if g.state == StateIdle || g.state == StateExpired {
		g.mu.Unlock()
		return nil
	}
	wasWarned := g.state == StateWarned
	g.rearmLocked()
	g.mu.Unlock()

	g.metrics.IncActivity(kind)
	if wasWarned {
		g.logg.Info(ctx, "activity resumed after inactivity warning")
	}
	return nil
}

// CheckAuth reports whether a live session exists right now. Provider
// failures read as unauthenticated.
func (g *Guard) CheckAuth(ctx context.Context) bool {
	sess, err := g.ident.GetSession(ctx)
	if err != nil {
		g.logg.Warn(ctx, "auth check failed, treating as unauthenticated")
		return false
	}
	return sess != nil
}

// ProtectRoute gates access to a screen. Unauthenticated operators are
// redirected to the login entry point and the access is denied.
func (g *Guard) ProtectRoute(ctx context.Context, target string) bool {
	if g.CheckAuth(ctx) {
		return true
	}
	g.logg.Info(ctx, fmt.Sprintf("blocked unauthenticated access to %s", target))
	g.nav.Navigate(ctx, g.login)
	return false
}

// SignOut is the guard's own teardown, used when no expiry handler is wired.
// Every step runs regardless of earlier failures and nothing is returned;
// the operator always ends up on the login screen.
func (g *Guard) SignOut(ctx context.Context) {
	g.StopMonitoring()
	if err := g.tokens.Clear(ctx); err != nil {
		g.logg.Warn(ctx, "failed to purge persisted token artifact")
	}
	if err := g.ident.SignOut(ctx); err != nil {
		g.logg.Warn(ctx, "provider sign-out failed during forced logout")
	}
	g.metrics.IncSignOut("inactivity")
	g.nav.Navigate(ctx, g.login)
}

// rearmLocked restarts both timers from a fresh last-activity instant. The
// generation counter invalidates any timer callback already in flight.
func (g *Guard) rearmLocked() {
	g.disarmLocked()
	g.gen++
	gen := g.gen
	g.lastActivity = g.now()
	g.state = StateArmed
	g.warnTimer = time.AfterFunc(g.warn, func() { g.handleWarn(gen) })
	g.expireTimer = time.AfterFunc(g.expire, func() { g.handleExpire(gen) })
}

func (g *Guard) disarmLocked() {
	g.gen++
	if g.warnTimer != nil {
		g.warnTimer.Stop()
		g.warnTimer = nil
	}
	if g.expireTimer != nil {
		g.expireTimer.Stop()
		g.expireTimer = nil
	}
}

func (g *Guard) handleWarn(gen uint64) {
	g.mu.Lock()
	if g.gen != gen || g.state != StateArmed {
		g.mu.Unlock()
		return
	}
	g.state = StateWarned
	remaining := g.expire - g.warn
	handler := g.onWarn
	g.mu.Unlock()

	ctx := context.Background()
	g.metrics.IncWarning()
	g.logg.Warn(ctx, fmt.Sprintf("inactivity warning, forced logout in %s", remaining))
	if handler != nil {
		handler(ctx, remaining)
	}
}

func (g *Guard) handleExpire(gen uint64) {
	g.mu.Lock()
	if g.gen != gen || (g.state != StateArmed && g.state != StateWarned) {
		g.mu.Unlock()
		return
	}
	// Flip to expired before releasing the lock so one arming cycle can
	// trigger at most one forced logout.
	g.state = StateExpired
	handler := g.onExpire
	g.mu.Unlock()

	ctx := context.Background()
	g.logg.Warn(ctx, "inactivity timeout reached, forcing logout")
	if handler != nil {
		handler(ctx)
		return
	}
	g.SignOut(ctx)
}
