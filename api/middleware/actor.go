package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/api/responses"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
)

const actorIDHeader = "X-Actor-Id"

// Actor resolves the caller's account id from the X-Actor-Id header. The
// substrate in front of this service authenticates callers; the header is
// trusted but must parse as a UUID.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(actorIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "X-Actor-Id header required"))
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "X-Actor-Id must be a valid UUID"))
				return
			}

			ctx := WithActorID(r.Context(), actorID.String())
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
