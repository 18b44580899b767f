package controllers

import (
	"net/http"

	"github.com/angelmondragon/groupbuy-backend/api/responses"
	"github.com/angelmondragon/groupbuy-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-GroupBuy-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies optional dependencies. A nil redis client means the
// deployment runs without idempotency storage and is still ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, redisClient redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-GroupBuy-Env", cfg.App.Env)
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis not reachable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
