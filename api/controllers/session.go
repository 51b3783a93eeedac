package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dvillanueva/crewdesk-backend/api/middleware"
	"github.com/dvillanueva/crewdesk-backend/api/responses"
	pkgerrors "github.com/dvillanueva/crewdesk-backend/pkg/errors"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
)

// SessionInfo echoes what the bearer token resolves to. The kiosk shell and
// the web client both use it to confirm a restored session is still live.
func SessionInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload := map[string]string{
			"user_id":   middleware.UserIDFromContext(ctx),
			"role":      middleware.RoleFromContext(ctx),
			"access_id": middleware.AccessIDFromContext(ctx),
		}
		if profileID := middleware.ProfileIDFromContext(ctx); profileID != "" {
			payload["profile_id"] = profileID
		}
		responses.WriteSuccess(w, payload)
	}
}

// SessionRevoker removes the session record behind an access id.
type SessionRevoker interface {
	Revoke(ctx context.Context, accessID string) error
}

// AdminSessionRevoke force-revokes another operator's session. The bearer of
// the revoked access id fails the session check on their next request.
func AdminSessionRevoke(sessions SessionRevoker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessID := strings.TrimSpace(chi.URLParam(r, "accessID"))
		if accessID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "access id is required"))
			return
		}
		if err := sessions.Revoke(r.Context(), accessID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoking session"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"revoked": accessID})
	}
}
