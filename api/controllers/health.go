package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dvillanueva/crewdesk-backend/api/responses"
	"github.com/dvillanueva/crewdesk-backend/pkg/config"
	"github.com/dvillanueva/crewdesk-backend/pkg/db"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
)

const readyCheckTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CrewDesk-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, checks map[string]db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CrewDesk-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		status := map[string]string{}
		for name, pinger := range checks {
			if pinger == nil {
				continue
			}
			if err := pinger.Ping(ctx); err != nil {
				status[name] = "down"
				err := pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").WithDetails(status)
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			status[name] = "up"
		}

		status["status"] = "ready"
		responses.WriteSuccess(w, status)
	}
}
