package health

import (
	"net/http"

	"github.com/janisto/waitlist/internal/api"
	applog "github.com/janisto/waitlist/internal/platform/logging"
	"github.com/janisto/waitlist/internal/platform/respond"
)

// Path is the liveness probe mounted outside the huma API.
const Path = "/health"

// Handler is a plain HTTP liveness probe. It reports process health only and
// never touches the store.
func Handler(w http.ResponseWriter, r *http.Request) {
	if err := respond.Write(w, r, http.StatusOK, api.Success()); err != nil {
		applog.LogError(r.Context(), "failed to render health", err)
	}
}
