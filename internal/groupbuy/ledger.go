// Package groupbuy owns the order state machine for the group-buying
// ledger: manufacturers post bulk orders with volume-discount tiers,
// retailers commit prepaid units, and once the minimum threshold is met the
// order settles — refunds, manufacturer payout, platform fee, stake return
// and reward recording, in that order.
package groupbuy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/internal/pricing"
	"github.com/angelmondragon/groupbuy-backend/internal/rewards"
	"github.com/angelmondragon/groupbuy-backend/internal/settlement"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/notify"
	"github.com/angelmondragon/groupbuy-backend/pkg/valuetransfer"
)

// Params carries the global platform parameters and account identities.
// Settlement reads the values in force when it runs, not the values frozen
// at order creation.
type Params struct {
	PlatformFeeBps int64
	RewardPoolBps  int64
	StakeAmount    int64

	// DefaultJoinWindow sets the deadline for orders created without one.
	DefaultJoinWindow time.Duration

	// PlatformAccount receives the platform fee (payment value).
	PlatformAccount uuid.UUID
	// PaymentTreasury is the ledger's own payment-value holding account,
	// the destination for join collections.
	PaymentTreasury uuid.UUID
	// RewardPoolAccount is the reward-value account stakes are held in and
	// the distributor pays claims from; settlement funds it from
	// PlatformRewardAccount. It must be the reward port's own holding
	// account, so claim payouts debit the same balance.
	RewardPoolAccount uuid.UUID
	// PlatformRewardAccount funds reward pools and receives nothing.
	PlatformRewardAccount uuid.UUID
	// AdminAccount may cancel expired orders alongside the manufacturer.
	AdminAccount uuid.UUID
}

// Ledger is the stateful orchestrator. Every mutating entry point runs under
// a non-reentrant execution lock: a call arriving while another is in
// progress — including one triggered re-entrantly by a downstream transfer —
// is rejected instead of interleaving.
type Ledger struct {
	opLock  sync.Mutex
	stateMu sync.RWMutex

	orders  map[uint64]*orderState
	nextID  uint64
	params  Params
	now     func() time.Time

	paymentPort valuetransfer.Port
	rewardPort  valuetransfer.Port
	distributor *rewards.Distributor
	emitter     notify.Emitter
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
}

// Option tweaks ledger construction.
type Option func(*Ledger)

// WithClock substitutes the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMetrics attaches operation metrics.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithLogger attaches a logger for post-commit notification failures.
func WithLogger(logg *logger.Logger) Option {
	return func(l *Ledger) { l.logg = logg }
}

// NewLedger wires the orchestrator. The ports and emitter are required up
// front; the distributor may be attached later via SetDistributor, and
// fulfillment fails with SERVICE_NOT_CONFIGURED until it is.
func NewLedger(params Params, paymentPort, rewardPort valuetransfer.Port, emitter notify.Emitter, opts ...Option) (*Ledger, error) {
	if paymentPort == nil || rewardPort == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "both value-transfer ports are required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "notification emitter required")
	}
	l := &Ledger{
		orders:      make(map[uint64]*orderState),
		params:      params,
		now:         time.Now,
		paymentPort: paymentPort,
		rewardPort:  rewardPort,
		emitter:     emitter,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// SetDistributor attaches the reward distributor.
func (l *Ledger) SetDistributor(d *rewards.Distributor) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.distributor = d
}

// SetParams replaces the global platform parameters. Orders already in
// progress are unaffected except that a later settlement reads the values
// current at that moment.
func (l *Ledger) SetParams(params Params) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.params = params
}

// acquire takes the execution lock without blocking. A held lock means a
// re-entrant (or otherwise overlapping) invocation; the substrate serializes
// legitimate calls, so rejecting is correct rather than waiting.
func (l *Ledger) acquire() error {
	if !l.opLock.TryLock() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "ledger operation already in progress")
	}
	return nil
}

// emit publishes a notification past an operation's commit point. The state
// change and transfers stand whether or not the publish goes through, so a
// failure is logged and dropped rather than surfaced as the operation's
// error.
func (l *Ledger) emit(ctx context.Context, eventType notify.EventType, payload any) {
	if emitErr := l.emitter.Emit(ctx, eventType, payload); emitErr != nil && l.logg != nil {
		l.logg.Error(l.logg.WithField(ctx, "event_type", string(eventType)), "notification emit failed", emitErr)
	}
}

func (l *Ledger) instrument(operation string, start time.Time, err error) {
	l.metrics.ObserveDuration(operation, time.Since(start))
	if err != nil {
		l.metrics.IncFailure(operation, string(pkgerrors.As(err).Code()))
		return
	}
	l.metrics.IncSuccess(operation)
}

// CreateOrderInput captures a manufacturer's new offering.
type CreateOrderInput struct {
	ManufacturerID uuid.UUID
	ProductID      string
	MinUnits       int64
	InitialPrice   int64
	Deadline       time.Time
	Tiers          []pricing.Tier
}

// CreateOrder opens a new order, optionally collecting the configured stake,
// and assigns a monotonically increasing order id.
func (l *Ledger) CreateOrder(ctx context.Context, input CreateOrderInput) (order Order, err error) {
	if err := l.acquire(); err != nil {
		return Order{}, err
	}
	defer l.opLock.Unlock()
	start := l.now()
	defer func() { l.instrument("create_order", start, err) }()

	if input.ManufacturerID == uuid.Nil {
		return Order{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "manufacturer identity missing")
	}
	if input.MinUnits <= 0 {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "minimum units must be positive")
	}
	if input.InitialPrice <= 0 {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "initial price must be positive")
	}
	deadline := input.Deadline
	if deadline.IsZero() && l.currentParams().DefaultJoinWindow > 0 {
		deadline = l.now().Add(l.currentParams().DefaultJoinWindow)
	}
	if deadline.IsZero() || !deadline.After(l.now()) {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "deadline must be in the future")
	}
	for _, tier := range input.Tiers {
		if tier.UnitsThreshold <= 0 {
			return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "tier threshold must be positive")
		}
		if tier.DiscountBps < 0 || tier.DiscountBps > pricing.BasisPointDenominator {
			return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "tier discount must be within [0,10000] bps")
		}
	}

	params := l.currentParams()
	if params.StakeAmount > 0 {
		if err := l.rewardPort.TransferFrom(ctx, input.ManufacturerID, params.RewardPoolAccount, params.StakeAmount); err != nil {
			return Order{}, pkgerrors.Wrap(pkgerrors.CodeInsufficientFunds, err, "collect manufacturer stake")
		}
	}

	// Snapshot the tiers so later caller mutations cannot reach the order.
	tiers := make([]pricing.Tier, len(input.Tiers))
	copy(tiers, input.Tiers)

	l.stateMu.Lock()
	l.nextID++
	state := &orderState{
		order: Order{
			ID:             l.nextID,
			ManufacturerID: input.ManufacturerID,
			ProductID:      input.ProductID,
			MinUnits:       input.MinUnits,
			InitialPrice:   input.InitialPrice,
			CurrentPrice:   input.InitialPrice,
			StakeAmount:    params.StakeAmount,
			Tiers:          tiers,
			CreatedAt:      l.now(),
			Deadline:       deadline,
			Active:         true,
			Fulfilled:      false,
		},
		contributors: make(map[uuid.UUID]struct{}),
	}
	l.orders[state.order.ID] = state
	order = state.snapshot()
	l.stateMu.Unlock()

	l.emit(ctx, notify.EventOrderCreated, notify.OrderCreatedEvent{
		OrderID:        order.ID,
		ManufacturerID: order.ManufacturerID,
		ProductID:      order.ProductID,
		MinUnits:       order.MinUnits,
		InitialPrice:   order.InitialPrice,
		StakeAmount:    order.StakeAmount,
		Deadline:       order.Deadline,
	})
	return order, nil
}

// JoinOrder commits units at the running price, collecting payment up front.
// One contribution per retailer per order; a second join is rejected, not
// merged.
func (l *Ledger) JoinOrder(ctx context.Context, orderID uint64, retailerID uuid.UUID, units int64) (err error) {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.opLock.Unlock()
	start := l.now()
	defer func() { l.instrument("join_order", start, err) }()

	if retailerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "retailer identity missing")
	}
	if units <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "units must be positive")
	}

	state, err := l.state(orderID)
	if err != nil {
		return err
	}
	if !state.order.Active || state.order.Fulfilled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not open")
	}
	if !l.now().Before(state.order.Deadline) {
		return pkgerrors.New(pkgerrors.CodeDeadline, "order deadline has passed")
	}
	if state.hasContribution(retailerID) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "retailer already contributed to this order")
	}

	amount := units * state.order.CurrentPrice
	if err := l.paymentPort.TransferFrom(ctx, retailerID, l.currentParams().PaymentTreasury, amount); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInsufficientFunds, err, "collect join payment")
	}

	l.stateMu.Lock()
	state.contributions = append(state.contributions, Contribution{
		RetailerID:   retailerID,
		UnitsOrdered: units,
		AmountPaid:   amount,
	})
	state.contributors[retailerID] = struct{}{}
	state.order.TotalUnitsCommitted += units
	state.order.TotalValueCollected += amount

	oldPrice := state.order.CurrentPrice
	newPrice := pricing.CurrentPrice(state.order.Tiers, state.order.InitialPrice, state.order.TotalUnitsCommitted)
	state.order.CurrentPrice = newPrice
	order := state.snapshot()
	l.stateMu.Unlock()

	l.emit(ctx, notify.EventRetailerJoined, notify.RetailerJoinedEvent{
		OrderID:    orderID,
		RetailerID: retailerID,
		Units:      units,
		AmountPaid: amount,
	})

	if newPrice != oldPrice {
		l.emit(ctx, notify.EventPriceUpdated, notify.PriceUpdatedEvent{
			OrderID:  orderID,
			OldPrice: oldPrice,
			NewPrice: newPrice,
		})
	}

	// Fires on every qualifying join, not just the crossing one.
	if order.TotalUnitsCommitted >= order.MinUnits {
		l.emit(ctx, notify.EventOrderReadyForProcessing, notify.OrderReadyForProcessingEvent{
			OrderID:        orderID,
			UnitsCommitted: order.TotalUnitsCommitted,
			MinUnits:       order.MinUnits,
		})
	}
	return nil
}

// ExecuteFulfillment settles an order whose threshold is met. The terminal
// state transition commits before any value moves, so a re-entrant call mid
// settlement finds the order already closed. A failed transfer rolls the
// in-memory transition back.
func (l *Ledger) ExecuteFulfillment(ctx context.Context, orderID uint64) (result settlement.FulfillmentResult, err error) {
	if err := l.acquire(); err != nil {
		return settlement.FulfillmentResult{}, err
	}
	defer l.opLock.Unlock()
	start := l.now()
	defer func() { l.instrument("execute_fulfillment", start, err) }()

	l.stateMu.RLock()
	distributor := l.distributor
	l.stateMu.RUnlock()
	if distributor == nil {
		return settlement.FulfillmentResult{}, pkgerrors.New(pkgerrors.CodeNotConfigured, "reward distributor not configured")
	}

	state, err := l.state(orderID)
	if err != nil {
		return settlement.FulfillmentResult{}, err
	}
	if !state.order.Active || state.order.Fulfilled {
		return settlement.FulfillmentResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not open")
	}
	if state.order.TotalUnitsCommitted < state.order.MinUnits {
		return settlement.FulfillmentResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "minimum units not reached")
	}

	params := l.currentParams()
	contributions := make([]settlement.ContributionSnapshot, len(state.contributions))
	for i, c := range state.contributions {
		contributions[i] = settlement.ContributionSnapshot{
			RetailerID:   c.RetailerID,
			UnitsOrdered: c.UnitsOrdered,
			AmountPaid:   c.AmountPaid,
		}
	}
	result = settlement.Compute(settlement.OrderSnapshot{
		InitialPrice:        state.order.InitialPrice,
		TotalUnitsCommitted: state.order.TotalUnitsCommitted,
		Tiers:               state.order.Tiers,
	}, contributions, params.PlatformFeeBps)

	// Everything else settlement pays out is already held by the ports (the
	// treasury holds the collected value, the pool account holds the stake);
	// the pool funding is the one transfer that can fail on an outside
	// balance, so check it before any value moves.
	pool := settlement.RewardPool(result.TotalValueForRewardCalc, params.RewardPoolBps)
	if pool > 0 {
		held, balErr := l.rewardPort.BalanceOf(ctx, params.PlatformRewardAccount)
		if balErr != nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, balErr, "check reward funding balance")
			return settlement.FulfillmentResult{}, err
		}
		if held < pool {
			err = pkgerrors.New(pkgerrors.CodeInsufficientFunds, "platform reward account cannot fund the pool")
			return settlement.FulfillmentResult{}, err
		}
	}

	// Close the transition before any external effect.
	l.stateMu.Lock()
	saved := state.snapshot()
	state.order.Fulfilled = true
	state.order.Active = false
	state.order.CurrentPrice = result.FinalPricePerUnit
	l.stateMu.Unlock()

	rollback := func(cause error, step string) (settlement.FulfillmentResult, error) {
		l.stateMu.Lock()
		state.restore(saved)
		l.stateMu.Unlock()
		err = pkgerrors.Wrap(pkgerrors.CodeInsufficientFunds, cause, step)
		return settlement.FulfillmentResult{}, err
	}

	for _, refund := range result.Refunds {
		if transferErr := l.paymentPort.Transfer(ctx, refund.RetailerID, refund.Amount); transferErr != nil {
			return rollback(transferErr, "refund retailer overpayment")
		}
	}
	if result.NetPaymentToManufacturer > 0 {
		if transferErr := l.paymentPort.Transfer(ctx, state.order.ManufacturerID, result.NetPaymentToManufacturer); transferErr != nil {
			return rollback(transferErr, "pay manufacturer")
		}
	}
	if result.PlatformFeeCollected > 0 {
		if transferErr := l.paymentPort.Transfer(ctx, params.PlatformAccount, result.PlatformFeeCollected); transferErr != nil {
			return rollback(transferErr, "pay platform fee")
		}
	}
	if state.order.StakeAmount > 0 {
		// The stake was collected into RewardPoolAccount, so it comes back
		// out of the same account.
		if transferErr := l.rewardPort.TransferFrom(ctx, params.RewardPoolAccount, state.order.ManufacturerID, state.order.StakeAmount); transferErr != nil {
			return rollback(transferErr, "return manufacturer stake")
		}
		l.emit(ctx, notify.EventStakeReturned, notify.StakeReturnedEvent{
			OrderID:        orderID,
			ManufacturerID: state.order.ManufacturerID,
			Amount:         state.order.StakeAmount,
		})
	}

	if pool > 0 {
		if transferErr := l.rewardPort.TransferFrom(ctx, params.PlatformRewardAccount, params.RewardPoolAccount, pool); transferErr != nil {
			return rollback(transferErr, "fund reward pool")
		}
		rewardShares := make([]rewards.Contribution, len(state.contributions))
		for i, c := range state.contributions {
			rewardShares[i] = rewards.Contribution{RetailerID: c.RetailerID, UnitsOrdered: c.UnitsOrdered}
		}
		if recordErr := distributor.Record(ctx, orderID, pool, state.order.TotalUnitsCommitted, rewardShares, params.RewardPoolAccount); recordErr != nil {
			return rollback(recordErr, "record rewards")
		}
	}

	l.emit(ctx, notify.EventOrderProcessed, notify.OrderProcessedEvent{
		OrderID:           orderID,
		FinalPricePerUnit: result.FinalPricePerUnit,
		NetToManufacturer: result.NetPaymentToManufacturer,
		PlatformFee:       result.PlatformFeeCollected,
		RefundsTotal:      result.RefundsTotal(),
		RewardPool:        pool,
	})
	return result, nil
}

// CancelOrder closes an order that missed its threshold after the deadline,
// refunding every contribution in full and returning the stake. Only the
// manufacturer or the platform administrator may cancel, and never while the
// order could still succeed.
func (l *Ledger) CancelOrder(ctx context.Context, orderID uint64, callerID uuid.UUID) (err error) {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.opLock.Unlock()
	start := l.now()
	defer func() { l.instrument("cancel_order", start, err) }()

	state, err := l.state(orderID)
	if err != nil {
		return err
	}
	params := l.currentParams()
	if callerID != state.order.ManufacturerID && (params.AdminAccount == uuid.Nil || callerID != params.AdminAccount) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the manufacturer or an administrator may cancel")
	}
	if !state.order.Active || state.order.Fulfilled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not open")
	}
	if l.now().Before(state.order.Deadline) {
		return pkgerrors.New(pkgerrors.CodeDeadline, "order deadline has not passed")
	}
	if state.order.TotalUnitsCommitted >= state.order.MinUnits {
		return pkgerrors.New(pkgerrors.CodeDeadline, "order met its minimum and must be fulfilled instead")
	}

	l.stateMu.Lock()
	saved := state.snapshot()
	state.order.Active = false
	l.stateMu.Unlock()

	rollback := func(cause error, step string) error {
		l.stateMu.Lock()
		state.restore(saved)
		l.stateMu.Unlock()
		err = pkgerrors.Wrap(pkgerrors.CodeInsufficientFunds, cause, step)
		return err
	}

	for _, c := range state.contributions {
		if transferErr := l.paymentPort.Transfer(ctx, c.RetailerID, c.AmountPaid); transferErr != nil {
			return rollback(transferErr, "refund contribution")
		}
	}
	if state.order.StakeAmount > 0 {
		if transferErr := l.rewardPort.TransferFrom(ctx, params.RewardPoolAccount, state.order.ManufacturerID, state.order.StakeAmount); transferErr != nil {
			return rollback(transferErr, "return manufacturer stake")
		}
		l.emit(ctx, notify.EventStakeReturned, notify.StakeReturnedEvent{
			OrderID:        orderID,
			ManufacturerID: state.order.ManufacturerID,
			Amount:         state.order.StakeAmount,
		})
	}

	l.emit(ctx, notify.EventOrderCancelled, notify.OrderCancelledEvent{
		OrderID:       orderID,
		CancelledBy:   callerID,
		RefundedUnits: state.order.TotalUnitsCommitted,
		RefundedValue: state.order.TotalValueCollected,
		CancelledAt:   l.now(),
	})
	return nil
}

// ClaimReward pays the caller's recorded reward for a settled order. Routed
// through the ledger so the claim sits inside the same execution lock as the
// other mutating entry points.
func (l *Ledger) ClaimReward(ctx context.Context, orderID uint64, callerID uuid.UUID) (amount int64, err error) {
	if err := l.acquire(); err != nil {
		return 0, err
	}
	defer l.opLock.Unlock()
	start := l.now()
	defer func() { l.instrument("claim_reward", start, err) }()

	l.stateMu.RLock()
	distributor := l.distributor
	l.stateMu.RUnlock()
	if distributor == nil {
		return 0, pkgerrors.New(pkgerrors.CodeNotConfigured, "reward distributor not configured")
	}
	if callerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	amount, err = distributor.Claim(ctx, orderID, callerID)
	return amount, err
}

// Reward reports the caller's recorded reward for an order, claimed or not.
func (l *Ledger) Reward(orderID uint64, callerID uuid.UUID) (rewards.Record, error) {
	l.stateMu.RLock()
	distributor := l.distributor
	l.stateMu.RUnlock()
	if distributor == nil {
		return rewards.Record{}, pkgerrors.New(pkgerrors.CodeNotConfigured, "reward distributor not configured")
	}
	record, ok := distributor.RewardFor(orderID, callerID)
	if !ok {
		return rewards.Record{}, pkgerrors.New(pkgerrors.CodeNotFound, "no reward recorded for caller")
	}
	return record, nil
}

// GetOrder returns a copy of the order's full state.
func (l *Ledger) GetOrder(orderID uint64) (Order, error) {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	state, ok := l.orders[orderID]
	if !ok {
		return Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	order := state.order
	order.Tiers = make([]pricing.Tier, len(state.order.Tiers))
	copy(order.Tiers, state.order.Tiers)
	return order, nil
}

// Contributions returns a copy of the order's contribution list in join order.
func (l *Ledger) Contributions(orderID uint64) ([]Contribution, error) {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	state, ok := l.orders[orderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	out := make([]Contribution, len(state.contributions))
	copy(out, state.contributions)
	return out, nil
}

func (l *Ledger) state(orderID uint64) (*orderState, error) {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	state, ok := l.orders[orderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return state, nil
}

func (l *Ledger) currentParams() Params {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.params
}
