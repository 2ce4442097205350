package middleware

import (
	"net/http"
	"strings"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

const actorHeader = "X-Actor"

const maxActorLength = 100

// Actor attaches the X-Actor header to the request context for audit
// entries, outbox envelopes and log lines.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(actorHeader))
			if len(actor) > maxActorLength {
				actor = actor[:maxActorLength]
			}
			if actor == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := audit.WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
