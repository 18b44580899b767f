// Package rewards exposes reward lookup and claiming for settled orders.
package rewards

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/api/middleware"
	"github.com/angelmondragon/groupbuy-backend/api/responses"
	"github.com/angelmondragon/groupbuy-backend/api/validators"
	"github.com/angelmondragon/groupbuy-backend/internal/groupbuy"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
)

type rewardView struct {
	OrderID    uint64    `json:"orderId"`
	RetailerID uuid.UUID `json:"retailerId"`
	Amount     int64     `json:"amount"`
	Claimed    bool      `json:"claimed"`
}

type claimView struct {
	OrderID uint64 `json:"orderId"`
	Amount  int64  `json:"amount"`
}

func actorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.ActorIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid caller identity")
	}
	return id, nil
}

// Detail returns the caller's recorded reward for an order.
func Detail(ledger *groupbuy.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParsePathUint64(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := ledger.Reward(orderID, caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rewardView{
			OrderID:    record.OrderID,
			RetailerID: record.RetailerID,
			Amount:     record.Amount,
			Claimed:    record.Claimed,
		})
	}
}

// Claim pays out the caller's reward for a settled order.
func Claim(ledger *groupbuy.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParsePathUint64(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := ledger.ClaimReward(r.Context(), orderID, caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, claimView{OrderID: orderID, Amount: amount})
	}
}
