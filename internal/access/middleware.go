package access

import (
	"log/slog"
	"net/http"

	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/platform/httpx"
	"github.com/sygep/sygep/internal/shared"
)

// Middleware gates HTTP routes on module access.
type Middleware struct {
	Policy *Policy
	Logger *slog.Logger
}

// Require rejects requests whose actor may not use the module in the given
// mode. Requests without a resolved actor are rejected as unauthenticated.
func (m Middleware) Require(module Module, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := actors.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if err := m.Policy.Require(r.Context(), actor, module, mode); err != nil {
				if m.Logger != nil {
					m.Logger.Warn("access denied",
						slog.Int64("actor_id", actor.ID),
						slog.String("module", string(module)),
						slog.String("mode", string(mode)))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
