package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvillanueva/crewdesk-backend/api/controllers"
	"github.com/dvillanueva/crewdesk-backend/api/middleware"
	"github.com/dvillanueva/crewdesk-backend/internal/auth"
	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/pkg/auth/session"
	"github.com/dvillanueva/crewdesk-backend/pkg/config"
	"github.com/dvillanueva/crewdesk-backend/pkg/db"
	"github.com/dvillanueva/crewdesk-backend/pkg/enums"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
	"github.com/dvillanueva/crewdesk-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions sessionManager,
	authService auth.Service,
	profileRepo *profiles.Repository,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]db.Pinger{
			"postgres": dbP,
			"redis":    redisClient,
		}))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(authService, logg))
		r.Post("/refresh", controllers.AuthRefresh(authService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))

		r.Post("/auth/logout", controllers.AuthLogout(authService, logg))
		r.Get("/session", controllers.SessionInfo())
		r.Get("/profiles/me", controllers.ProfileMe(profileRepo, logg))
		r.Put("/profiles/me", controllers.ProfileUpdateMe(profileRepo, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAnyRole(logg, string(enums.RoleAdmin), string(enums.RoleHR)))
			r.Delete("/admin/sessions/{accessID}", controllers.AdminSessionRevoke(sessions, logg))
		})
	})

	return r
}
