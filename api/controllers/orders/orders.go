// Package orders exposes the order lifecycle over HTTP: creation, joining,
// fulfillment, cancellation and read access.
package orders

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/api/middleware"
	"github.com/angelmondragon/groupbuy-backend/api/responses"
	"github.com/angelmondragon/groupbuy-backend/api/validators"
	"github.com/angelmondragon/groupbuy-backend/internal/groupbuy"
	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
)

type tierPayload struct {
	UnitsThreshold int64 `json:"unitsThreshold" validate:"gt=0"`
	DiscountBps    int64 `json:"discountBps" validate:"min=0,max=10000"`
}

type createOrderRequest struct {
	ProductID    string        `json:"productId" validate:"required"`
	MinUnits     int64         `json:"minUnits" validate:"gt=0"`
	InitialPrice int64         `json:"initialPrice" validate:"gt=0"`
	Deadline     time.Time     `json:"deadline"`
	Tiers        []tierPayload `json:"tiers" validate:"dive"`
}

type joinOrderRequest struct {
	Units int64 `json:"units" validate:"gt=0"`
}

type orderView struct {
	ID                  uint64        `json:"id"`
	ManufacturerID      uuid.UUID     `json:"manufacturerId"`
	ProductID           string        `json:"productId"`
	MinUnits            int64         `json:"minUnits"`
	InitialPrice        int64         `json:"initialPrice"`
	CurrentPrice        int64         `json:"currentPrice"`
	TotalUnitsCommitted int64         `json:"totalUnitsCommitted"`
	TotalValueCollected int64         `json:"totalValueCollected"`
	StakeAmount         int64         `json:"stakeAmount"`
	Tiers               []tierPayload `json:"tiers"`
	CreatedAt           time.Time     `json:"createdAt"`
	Deadline            time.Time     `json:"deadline"`
	Status              string        `json:"status"`
}

type contributionView struct {
	RetailerID   uuid.UUID `json:"retailerId"`
	UnitsOrdered int64     `json:"unitsOrdered"`
	AmountPaid   int64     `json:"amountPaid"`
}

type fulfillmentView struct {
	OrderID                  uint64 `json:"orderId"`
	FinalPricePerUnit        int64  `json:"finalPricePerUnit"`
	NetPaymentToManufacturer int64  `json:"netPaymentToManufacturer"`
	PlatformFeeCollected     int64  `json:"platformFeeCollected"`
	RefundsTotal             int64  `json:"refundsTotal"`
}

func toOrderView(order groupbuy.Order) orderView {
	tiers := make([]tierPayload, len(order.Tiers))
	for i, tier := range order.Tiers {
		tiers[i] = tierPayload{UnitsThreshold: tier.UnitsThreshold, DiscountBps: tier.DiscountBps}
	}
	return orderView{
		ID:                  order.ID,
		ManufacturerID:      order.ManufacturerID,
		ProductID:           order.ProductID,
		MinUnits:            order.MinUnits,
		InitialPrice:        order.InitialPrice,
		CurrentPrice:        order.CurrentPrice,
		TotalUnitsCommitted: order.TotalUnitsCommitted,
		TotalValueCollected: order.TotalValueCollected,
		StakeAmount:         order.StakeAmount,
		Tiers:               tiers,
		CreatedAt:           order.CreatedAt,
		Deadline:            order.Deadline,
		Status:              orderStatus(order),
	}
}

func orderStatus(order groupbuy.Order) string {
	switch {
	case order.Fulfilled:
		return "fulfilled"
	case order.Active:
		return "open"
	default:
		return "cancelled"
	}
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

func orderIDParam(r *http.Request) (uint64, error) {
	return validators.ParsePathUint64(chi.URLParam(r, "orderId"), "orderId")
}

// Create opens a new order on behalf of the calling manufacturer.
func Create(ledger *groupbuy.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tiers := make([]pricing.Tier, len(req.Tiers))
		for i, tier := range req.Tiers {
			tiers[i] = pricing.Tier{UnitsThreshold: tier.UnitsThreshold, DiscountBps: tier.DiscountBps}
		}

		order, err := ledger.CreateOrder(r.Context(), groupbuy.CreateOrderInput{
			ManufacturerID: caller,
			ProductID:      req.ProductID,
			MinUnits:       req.MinUnits,
			InitialPrice:   req.InitialPrice,
			Deadline:       req.Deadline,
			Tiers:          tiers,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderView(order))
	}
}

// Detail returns the current state of one order.
func Detail(ledger *groupbuy.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := ledger.GetOrder(orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

// Contributions lists an order's contributions in join order.
func Contributions(ledger *groupbuy.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contributions, err := ledger.Contributions(orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]contributionView, len(contributions))
		for i, c := range contributions {
			views[i] = contributionView{
				RetailerID:   c.RetailerID,
				UnitsOrdered: c.UnitsOrdered,
				AmountPaid:   c.AmountPaid,
			}
		}
		responses.WriteSuccess(w, views)
	}
}

// Join commits the calling retailer's units at the running price.
func Join(ledger *groupbuy.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req joinOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := ledger.JoinOrder(r.Context(), orderID, caller, req.Units); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := ledger.GetOrder(orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

// Fulfill settles an order that reached its minimum units.
func Fulfill(ledger *groupbuy.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := ledger.ExecuteFulfillment(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fulfillmentView{
			OrderID:                  orderID,
			FinalPricePerUnit:        result.FinalPricePerUnit,
			NetPaymentToManufacturer: result.NetPaymentToManufacturer,
			PlatformFeeCollected:     result.PlatformFeeCollected,
			RefundsTotal:             result.RefundsTotal(),
		})
	}
}

// Cancel closes an expired order that missed its threshold, refunding all
// contributions.
func Cancel(ledger *groupbuy.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := ledger.CancelOrder(r.Context(), orderID, caller); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := ledger.GetOrder(orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}
