package kiosk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dvillanueva/crewdesk-backend/api/middleware"
	"github.com/dvillanueva/crewdesk-backend/api/responses"
	"github.com/dvillanueva/crewdesk-backend/api/validators"
	"github.com/dvillanueva/crewdesk-backend/internal/identity"
	"github.com/dvillanueva/crewdesk-backend/internal/inactivity"
	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/internal/session"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the local HTTP facade the kiosk shell talks to. One operator is
// signed in per process; every route operates on that single session.
type Server struct {
	manager  *session.Manager
	guard    *inactivity.Guard
	nav      *ScreenNavigator
	logg     *logger.Logger
	registry *prometheus.Registry
}

func NewServer(manager *session.Manager, guard *inactivity.Guard, nav *ScreenNavigator, logg *logger.Logger) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("inactivity guard is required")
	}
	if nav == nil {
		return nil, fmt.Errorf("navigator is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Server{manager: manager, guard: guard, nav: nav, logg: logg}, nil
}

// WithMetrics exposes the given registry on /metrics.
func (s *Server) WithMetrics(registry *prometheus.Registry) *Server {
	s.registry = registry
	return s
}

// Router assembles the kiosk route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID(s.logg))
	r.Use(middleware.Logging(s.logg))
	r.Use(middleware.Recoverer(s.logg))

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/session", s.handleState)
		r.Post("/session/login", s.handleLogin)
		r.Post("/session/signup", s.handleSignUp)
		r.Post("/session/logout", s.handleLogout)
		r.Put("/session/profile", s.handleUpdateProfile)
		r.Get("/session/events", s.handleEvents)

		r.Post("/activity", s.handleActivity)
		r.Get("/guard", s.handleGuardState)

		r.Get("/screen", s.handleCurrentScreen)
		r.Get("/screens/{name}", s.handleScreen)
	})

	return r
}

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signUpBody struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	FullName string  `json:"full_name" validate:"required"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Role     string  `json:"role,omitempty"`
}

type activityBody struct {
	Kind string `json:"kind" validate:"required"`
}

type stateDTO struct {
	User    *session.User  `json:"user"`
	Profile *profiles.View `json:"profile"`
	Loading bool           `json:"loading"`
	Screen  string         `json:"screen"`
}

func (s *Server) stateDTO(state session.State) stateDTO {
	return stateDTO{
		User:    state.User,
		Profile: state.Profile,
		Loading: state.Loading,
		Screen:  s.nav.Current(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	responses.WriteSuccess(w, s.stateDTO(s.manager.State()))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}

	if err := s.manager.SignIn(r.Context(), body.Email, body.Password); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}
	responses.WriteSuccess(w, s.stateDTO(s.manager.State()))
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body signUpBody
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}

	params := identity.SignUpParams{
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
		Phone:    body.Phone,
	}
	if body.Role != "" {
		role, err := parseRole(body.Role)
		if err != nil {
			responses.WriteError(r.Context(), s.logg, w, err)
			return
		}
		params.Role = role
	}

	if err := s.manager.SignUp(r.Context(), params); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, s.stateDTO(s.manager.State()))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.manager.SignOut(r.Context())
	responses.WriteSuccess(w, s.stateDTO(s.manager.State()))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var changes profiles.Changes
	if err := validators.DecodeJSONBody(r, &changes); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}

	if err := s.manager.UpdateProfile(r.Context(), changes); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}
	responses.WriteSuccess(w, s.stateDTO(s.manager.State()))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var body activityBody
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		responses.WriteError(r.Context(), s.logg, w, err)
		return
	}

	if err := s.guard.Activity(r.Context(), body.Kind); err != nil {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid interaction"))
		return
	}
	responses.WriteSuccess(w, map[string]string{"guard": s.guard.State().String()})
}

func (s *Server) handleGuardState(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"state": s.guard.State().String()}
	if last := s.guard.LastActivity(); !last.IsZero() {
		payload["last_activity"] = last.Format(time.RFC3339Nano)
	}
	responses.WriteSuccess(w, payload)
}

func (s *Server) handleCurrentScreen(w http.ResponseWriter, r *http.Request) {
	responses.WriteSuccess(w, map[string]string{"screen": s.nav.Current()})
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	target := "/" + name
	if !s.guard.ProtectRoute(r.Context(), target) {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to continue"))
		return
	}
	s.nav.Navigate(r.Context(), target)
	responses.WriteSuccess(w, map[string]string{"screen": target})
}

// handleEvents streams session state transitions as server-sent events. The
// current state is sent first so a reconnecting shell renders immediately.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		responses.WriteError(r.Context(), s.logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Transitions are pushed from the manager's notify path; a slow consumer
	// drops intermediate states rather than blocking the core.
	events := make(chan session.State, 16)
	unsubscribe := s.manager.Subscribe(func(state session.State) {
		select {
		case events <- state:
		default:
		}
	})
	defer unsubscribe()

	writeEvent := func(state session.State) bool {
		payload, err := json.Marshal(s.stateDTO(state))
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeEvent(s.manager.State()) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case state := <-events:
			if !writeEvent(state) {
				return
			}
		}
	}
}

func parseRole(value string) (enums.Role, error) {
	role, err := enums.ParseRole(value)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
	}
	return role, nil
}
