package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dvillanueva/crewdesk-backend/internal/identity"
	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	authsession "github.com/dvillanueva/crewdesk-backend/pkg/auth/session"
	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
	dbtypes "github.com/dvillanueva/crewdesk-backend/pkg/db/types"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
	"github.com/google/uuid"
)

type stubProvider struct {
	mu sync.Mutex

	session      *identity.Session
	sessionErr   error
	sessionGate  chan struct{}
	sessionBegan chan struct{}

	signInIdent *identity.Identity
	signInErr   error
	signInGate  chan struct{}
	signInBegan chan struct{}
	signInPanic string

	signUpIdent *identity.Identity
	signUpErr   error

	signOutErr   error
	signOutCalls int

	updateErr     error
	updateCalls   int
	lastProfileID uuid.UUID
	lastChanges   profiles.Changes
}

func (p *stubProvider) GetSession(context.Context) (*identity.Session, error) {
	if p.sessionBegan != nil {
		close(p.sessionBegan)
		p.sessionBegan = nil
	}
	if p.sessionGate != nil {
		<-p.sessionGate
	}
	return p.session, p.sessionErr
}

func (p *stubProvider) SignIn(context.Context, string, string) (*identity.Identity, error) {
	if p.signInBegan != nil {
		close(p.signInBegan)
		p.signInBegan = nil
	}
	if p.signInGate != nil {
		<-p.signInGate
	}
	if p.signInPanic != "" {
		panic(p.signInPanic)
	}
	return p.signInIdent, p.signInErr
}

func (p *stubProvider) SignUp(context.Context, identity.SignUpParams) (*identity.Identity, error) {
	return p.signUpIdent, p.signUpErr
}

func (p *stubProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signOutCalls++
	p.mu.Unlock()
	return p.signOutErr
}

func (p *stubProvider) UpdateProfile(_ context.Context, profileID uuid.UUID, changes profiles.Changes) error {
	p.mu.Lock()
	p.updateCalls++
	p.lastProfileID = profileID
	p.lastChanges = changes
	p.mu.Unlock()
	return p.updateErr
}

type stubProfileFetcher struct {
	profile *models.Profile
	err     error
}

func (f *stubProfileFetcher) FindByUserID(context.Context, uuid.UUID) (*models.Profile, error) {
	return f.profile, f.err
}

type stubTokenStore struct {
	mu         sync.Mutex
	clearCalls int
	clearErr   error
}

func (s *stubTokenStore) Save(context.Context, string) error { return nil }

func (s *stubTokenStore) Load(context.Context) (string, error) {
	return "", authsession.ErrNoStoredToken
}

func (s *stubTokenStore) Clear(context.Context) error {
	s.mu.Lock()
	s.clearCalls++
	s.mu.Unlock()
	return s.clearErr
}

type stubMonitor struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (m *stubMonitor) StartMonitoring() {
	m.mu.Lock()
	m.starts++
	m.mu.Unlock()
}

func (m *stubMonitor) StopMonitoring() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
}

type stubNavigator struct {
	mu     sync.Mutex
	logins int
}

func (n *stubNavigator) ToLogin(context.Context) {
	n.mu.Lock()
	n.logins++
	n.mu.Unlock()
}

type managerFixture struct {
	manager  *Manager
	provider *stubProvider
	fetcher  *stubProfileFetcher
	tokens   *stubTokenStore
	monitor  *stubMonitor
	nav      *stubNavigator
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	fx := &managerFixture{
		provider: &stubProvider{},
		fetcher:  &stubProfileFetcher{err: profiles.ErrNotFound},
		tokens:   &stubTokenStore{},
		monitor:  &stubMonitor{},
		nav:      &stubNavigator{},
	}
	mgr, err := NewManager(ManagerParams{
		Provider:  fx.provider,
		Profiles:  fx.fetcher,
		Tokens:    fx.tokens,
		Monitor:   fx.monitor,
		Navigator: fx.nav,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	fx.manager = mgr
	return fx
}

func testProfileModel(userID uuid.UUID) *models.Profile {
	return &models.Profile{
		ID:          uuid.New(),
		UserID:      userID,
		Email:       "ana@crewdesk.io",
		FullName:    "Ana Delgado",
		Role:        enums.RoleManager,
		Skills:      dbtypes.StringArray{"scheduling"},
		SocialLinks: dbtypes.JSONMap{},
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func TestInitializeRestoresSession(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	profile := testProfileModel(userID)
	profileID := profile.ID
	fx.provider.session = &identity.Session{IdentityID: userID, ProfileID: &profileID, Role: enums.RoleManager}
	fx.fetcher.profile = profile
	fx.fetcher.err = nil

	var transitions []State
	fx.manager.Subscribe(func(s State) { transitions = append(transitions, s) })

	fx.manager.Initialize(context.Background())

	state := fx.manager.State()
	if state.User == nil || state.Profile == nil {
		t.Fatalf("expected signed-in state, got %+v", state)
	}
	if state.Loading {
		t.Fatal("loading must settle false")
	}
	if state.User.ID != userID {
		t.Fatalf("unexpected user id %s", state.User.ID)
	}
	if state.User.ProfileID == nil || *state.User.ProfileID != profile.ID {
		t.Fatalf("expected profile id %s on user, got %v", profile.ID, state.User.ProfileID)
	}
	if state.User.Name != "Ana Delgado" || state.User.FullName != "Ana Delgado" {
		t.Fatalf("name aliases must match, got %q / %q", state.User.Name, state.User.FullName)
	}
	if state.Profile.Email != "ana@crewdesk.io" {
		t.Fatalf("unexpected profile email %q", state.Profile.Email)
	}
	if fx.monitor.starts != 1 {
		t.Fatalf("expected monitoring started once, got %d", fx.monitor.starts)
	}
	if len(transitions) == 0 || !transitions[0].Loading {
		t.Fatal("first transition must raise loading")
	}
	if last := transitions[len(transitions)-1]; last.Loading {
		t.Fatal("last transition must clear loading")
	}
}

func TestInitializeWithoutSessionStaysSignedOut(t *testing.T) {
	fx := newManagerFixture(t)

	fx.manager.Initialize(context.Background())

	state := fx.manager.State()
	if state.User != nil || state.Profile != nil || state.Loading {
		t.Fatalf("expected cleared state, got %+v", state)
	}
	if fx.monitor.starts != 0 {
		t.Fatal("monitoring must not start without a session")
	}
}

func TestInitializeProfileFetchFailureClearsBoth(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	fx.provider.session = &identity.Session{IdentityID: userID}
	fx.fetcher.err = errors.New("connection refused")

	fx.manager.Initialize(context.Background())

	state := fx.manager.State()
	if state.User != nil || state.Profile != nil {
		t.Fatalf("user and profile must clear together, got %+v", state)
	}
	if state.Loading {
		t.Fatal("loading must settle false")
	}
}

func TestInitializeProviderErrorTreatedAsSignedOut(t *testing.T) {
	fx := newManagerFixture(t)
	fx.provider.sessionErr = errors.New("redis down")

	fx.manager.Initialize(context.Background())

	if state := fx.manager.State(); state.User != nil || state.Loading {
		t.Fatalf("expected settled signed-out state, got %+v", state)
	}
}

func TestSignInPublishesPairedState(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	profile := testProfileModel(userID)
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.profile = profile
	fx.fetcher.err = nil

	if err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	state := fx.manager.State()
	if state.User == nil || state.Profile == nil {
		t.Fatalf("expected signed-in state, got %+v", state)
	}
	if state.Profile.ID != profile.ID {
		t.Fatalf("unexpected profile id %s", state.Profile.ID)
	}
	if fx.monitor.starts != 1 {
		t.Fatalf("expected monitoring started once, got %d", fx.monitor.starts)
	}
}

func TestSignInFailureClearsLoadingAndKeepsSignedOut(t *testing.T) {
	fx := newManagerFixture(t)
	fx.provider.signInErr = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")

	err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "bad")
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}

	state := fx.manager.State()
	if state.User != nil || state.Profile != nil || state.Loading {
		t.Fatalf("expected settled signed-out state, got %+v", state)
	}
	if fx.monitor.starts != 0 {
		t.Fatal("monitoring must not start on failed sign-in")
	}
}

func TestSignInSurvivesProfileFetchFailure(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.err = errors.New("timeout")

	if err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	state := fx.manager.State()
	if state.User == nil || state.Profile == nil {
		t.Fatalf("fallback must keep the pairing intact, got %+v", state)
	}
	if state.User.ProfileID != nil {
		t.Fatal("fallback view must not invent a profile row id")
	}
	if state.User.Name != "ana" {
		t.Fatalf("expected name derived from email, got %q", state.User.Name)
	}

	// Without a real row id, profile updates must be rejected.
	name := "New Name"
	err := fx.manager.UpdateProfile(context.Background(), profiles.Changes{FullName: &name})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNoActiveProfile) {
		t.Fatalf("expected no-active-profile error, got %v", err)
	}
}

func TestSignUpPublishesCreatedProfile(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	view := profiles.FromModel(testProfileModel(userID))
	fx.provider.signUpIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io", Profile: view}

	err := fx.manager.SignUp(context.Background(), identity.SignUpParams{
		Email: "ana@crewdesk.io", Password: "longenough", FullName: "Ana Delgado",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	state := fx.manager.State()
	if state.Profile == nil || state.Profile.ID != view.ID {
		t.Fatalf("expected created profile published, got %+v", state.Profile)
	}
	if fx.monitor.starts != 1 {
		t.Fatalf("expected monitoring started once, got %d", fx.monitor.starts)
	}
}

func TestSignOutIsIdempotent(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.profile = testProfileModel(userID)
	fx.fetcher.err = nil
	if err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	fx.manager.SignOut(context.Background())
	first := fx.manager.State()
	fx.manager.SignOut(context.Background())
	second := fx.manager.State()

	if first.User != nil || second.User != nil || first.Profile != nil || second.Profile != nil {
		t.Fatal("sign-out must clear user and profile")
	}
	if first.Loading || second.Loading {
		t.Fatal("loading must settle false after sign-out")
	}
	if fx.nav.logins != 2 {
		t.Fatalf("each sign-out must land on login, got %d navigations", fx.nav.logins)
	}
	if fx.monitor.stops < 2 {
		t.Fatalf("each sign-out must stop monitoring, got %d stops", fx.monitor.stops)
	}
	if fx.tokens.clearCalls < 2 {
		t.Fatalf("each sign-out must purge the token artifact, got %d clears", fx.tokens.clearCalls)
	}
}

func TestSignOutProviderFailureStillClearsState(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.profile = testProfileModel(userID)
	fx.fetcher.err = nil
	if err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	fx.provider.signOutErr = errors.New("network down")
	fx.tokens.clearErr = errors.New("redis down")

	fx.manager.SignOut(context.Background())

	state := fx.manager.State()
	if state.User != nil || state.Profile != nil || state.Loading {
		t.Fatalf("local teardown must complete despite failures, got %+v", state)
	}
	if fx.nav.logins != 1 {
		t.Fatal("sign-out must still navigate to login")
	}
}

func TestUpdateProfileMergesAcceptedFields(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	profile := testProfileModel(userID)
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.profile = profile
	fx.fetcher.err = nil
	if err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	before := fx.manager.State()

	name := "Ana D. Vega"
	bio := "Shift lead, warehouse two."
	err := fx.manager.UpdateProfile(context.Background(), profiles.Changes{FullName: &name, Bio: &bio})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	state := fx.manager.State()
	if state.Profile.FullName != name {
		t.Fatalf("expected merged full name, got %q", state.Profile.FullName)
	}
	if state.Profile.Bio == nil || *state.Profile.Bio != bio {
		t.Fatalf("expected merged bio, got %v", state.Profile.Bio)
	}
	if state.Profile.Email != before.Profile.Email {
		t.Fatal("untouched fields must survive the merge")
	}
	if state.User.Name != name || state.User.FullName != name {
		t.Fatalf("user projection must track the merge, got %q / %q", state.User.Name, state.User.FullName)
	}
	if fx.provider.updateCalls != 1 || fx.provider.lastProfileID != profile.ID {
		t.Fatalf("expected one store write for profile %s", profile.ID)
	}
	if !state.Profile.UpdatedAt.After(before.Profile.UpdatedAt) {
		t.Fatal("merge must stamp updated_at")
	}
}

func TestUpdateProfileFailureLeavesStateUntouched(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.profile = testProfileModel(userID)
	fx.fetcher.err = nil
	if err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	before := fx.manager.State()
	fx.provider.updateErr = pkgerrors.New(pkgerrors.CodeDependency, "updating profile")

	name := "Should Not Land"
	err := fx.manager.UpdateProfile(context.Background(), profiles.Changes{FullName: &name})
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	state := fx.manager.State()
	if state.Profile.FullName != before.Profile.FullName {
		t.Fatal("rejected write must not leak into published state")
	}
	if state.Loading {
		t.Fatal("loading must settle false after a failed update")
	}
}

func TestUpdateProfileWithoutSession(t *testing.T) {
	fx := newManagerFixture(t)

	name := "Nobody"
	err := fx.manager.UpdateProfile(context.Background(), profiles.Changes{FullName: &name})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNoActiveProfile) {
		t.Fatalf("expected no-active-profile error, got %v", err)
	}
}

func TestConcurrentLifecycleOperationRejected(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.profile = testProfileModel(userID)
	fx.fetcher.err = nil

	gate := make(chan struct{})
	began := make(chan struct{})
	fx.provider.signInGate = gate
	fx.provider.signInBegan = began

	done := make(chan error, 1)
	go func() {
		done <- fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw")
	}()
	<-began

	err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw")
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state-conflict error, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first SignIn failed: %v", err)
	}
	if fx.manager.State().User == nil {
		t.Fatal("first sign-in must still complete")
	}
}

func TestSignInDuringInitializeRejected(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	profile := testProfileModel(userID)
	profileID := profile.ID
	fx.provider.session = &identity.Session{IdentityID: userID, ProfileID: &profileID, Role: enums.RoleManager}
	fx.fetcher.profile = profile
	fx.fetcher.err = nil

	gate := make(chan struct{})
	began := make(chan struct{})
	fx.provider.sessionGate = gate
	fx.provider.sessionBegan = began

	done := make(chan struct{})
	go func() {
		fx.manager.Initialize(context.Background())
		close(done)
	}()
	<-began

	err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw")
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state-conflict error, got %v", err)
	}

	close(gate)
	<-done

	state := fx.manager.State()
	if state.User == nil || state.User.ID != userID {
		t.Fatalf("restore must still complete, got %+v", state)
	}
	if state.Loading {
		t.Fatal("loading must settle false")
	}
}

func TestInitializeSkippedDuringSignIn(t *testing.T) {
	fx := newManagerFixture(t)
	userID := uuid.New()
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.profile = testProfileModel(userID)
	fx.fetcher.err = nil

	gate := make(chan struct{})
	began := make(chan struct{})
	fx.provider.signInGate = gate
	fx.provider.signInBegan = began

	done := make(chan error, 1)
	go func() {
		done <- fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw")
	}()
	<-began

	// A restore racing the sign-in must back off, not wipe its outcome.
	fx.manager.Initialize(context.Background())

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	state := fx.manager.State()
	if state.User == nil || state.User.ID != userID {
		t.Fatalf("sign-in state must survive the skipped restore, got %+v", state)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	fx := newManagerFixture(t)

	var count int
	unsubscribe := fx.manager.Subscribe(func(State) { count++ })

	fx.manager.Initialize(context.Background())
	if count == 0 {
		t.Fatal("subscriber must observe transitions")
	}

	seen := count
	unsubscribe()
	unsubscribe()
	fx.manager.Initialize(context.Background())
	if count != seen {
		t.Fatalf("unsubscribed callback must not fire, got %d extra", count-seen)
	}
}

func TestSignInPanicConvertedToFailure(t *testing.T) {
	fx := newManagerFixture(t)
	fx.provider.signInPanic = "provider exploded"

	err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw")
	if !pkgerrors.HasCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}

	state := fx.manager.State()
	if state.SignedIn() {
		t.Fatal("state must remain signed out after a panicking sign-in")
	}
	if state.Loading {
		t.Fatal("loading must settle false after a panicking sign-in")
	}

	userID := uuid.New()
	fx.provider.signInPanic = ""
	fx.provider.signInIdent = &identity.Identity{ID: userID, Email: "ana@crewdesk.io"}
	fx.fetcher.profile = testProfileModel(userID)
	fx.fetcher.err = nil

	if err := fx.manager.SignIn(context.Background(), "ana@crewdesk.io", "pw"); err != nil {
		t.Fatalf("follow-up SignIn must succeed, got %v", err)
	}
	if fx.manager.State().User == nil {
		t.Fatal("follow-up sign-in must publish state")
	}
}
