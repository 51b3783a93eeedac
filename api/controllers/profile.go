package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dvillanueva/crewdesk-backend/api/middleware"
	"github.com/dvillanueva/crewdesk-backend/api/responses"
	"github.com/dvillanueva/crewdesk-backend/api/validators"
	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/pkg/db/models"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
	"github.com/google/uuid"
)

type profileStore interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

// ProfileMe returns the profile paired to the authenticated identity.
func ProfileMe(store profileStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity"))
			return
		}

		profile, err := store.FindByUserID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, profiles.ErrNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNoActiveProfile, "no active profile"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup profile"))
			return
		}

		responses.WriteSuccess(w, profiles.FromModel(profile))
	}
}

// ProfileUpdateMe applies a partial update to the caller's own profile and
// returns the full row as it stands after the write.
func ProfileUpdateMe(store profileStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := uuid.Parse(middleware.ProfileIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNoActiveProfile, "no active profile"))
			return
		}

		var changes profiles.Changes
		if err := validators.DecodeJSONBody(r, &changes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if changes.IsEmpty() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update"))
			return
		}

		if err := store.UpdateFields(r.Context(), profileID, changes.Updates()); err != nil {
			if errors.Is(err, profiles.ErrNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile"))
			return
		}

		profile, err := store.FindByID(r.Context(), profileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload profile"))
			return
		}

		responses.WriteSuccess(w, profiles.FromModel(profile))
	}
}
