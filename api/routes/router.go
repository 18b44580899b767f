package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/groupbuy-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/groupbuy-backend/api/controllers/orders"
	rewardcontrollers "github.com/angelmondragon/groupbuy-backend/api/controllers/rewards"
	"github.com/angelmondragon/groupbuy-backend/api/middleware"
	"github.com/angelmondragon/groupbuy-backend/internal/groupbuy"
	"github.com/angelmondragon/groupbuy-backend/pkg/config"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/groupbuy-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *pkgredis.Client,
	ledger *groupbuy.Ledger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, healthPinger(redisClient)))
	})
	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.Idempotency(idempotencyStore(redisClient), logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ledger, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(ledger, logg))
				r.Get("/contributions", ordercontrollers.Contributions(ledger, logg))
				r.Post("/join", ordercontrollers.Join(ledger, logg))
				r.Post("/fulfill", ordercontrollers.Fulfill(ledger, logg))
				r.Post("/cancel", ordercontrollers.Cancel(ledger, logg))
				r.Route("/rewards", func(r chi.Router) {
					r.Get("/", rewardcontrollers.Detail(ledger, logg))
					r.Post("/claim", rewardcontrollers.Claim(ledger, logg))
				})
			})
		})
	})

	return r
}

// A nil *Client must become a nil interface, not a typed nil.
func idempotencyStore(client *pkgredis.Client) pkgredis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}

func healthPinger(client *pkgredis.Client) pkgredis.Pinger {
	if client == nil {
		return nil
	}
	return client
}
