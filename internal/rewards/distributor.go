// Package rewards holds the per-order reward pools recorded at settlement
// and pays them out on individual claims.
package rewards

import (
	"context"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/notify"
	"github.com/angelmondragon/groupbuy-backend/pkg/valuetransfer"
)

// Record is one retailer's claimable reward for a settled order.
// Created once at settlement, claimed at most once, never deleted.
type Record struct {
	OrderID    uint64    `json:"order_id"`
	RetailerID uuid.UUID `json:"retailer_id"`
	Amount     int64     `json:"amount"`
	Claimed    bool      `json:"claimed"`
}

type recordKey struct {
	orderID  uint64
	retailer uuid.UUID
}

// Contribution is the share basis for one retailer.
type Contribution struct {
	RetailerID   uuid.UUID
	UnitsOrdered int64
}

// Distributor records proportional reward pools and serves claims against
// them. The reward-value port both funds and pays the pool; no other
// component touches that balance.
type Distributor struct {
	mu      sync.Mutex
	records map[recordKey]*Record

	rewardPort valuetransfer.Port
	emitter    notify.Emitter
	logg       *logger.Logger
}

// Option tweaks distributor construction.
type Option func(*Distributor)

// WithLogger attaches a logger for post-commit notification failures.
func WithLogger(logg *logger.Logger) Option {
	return func(d *Distributor) { d.logg = logg }
}

// NewDistributor wires a distributor against the reward-value port.
func NewDistributor(rewardPort valuetransfer.Port, emitter notify.Emitter, opts ...Option) (*Distributor, error) {
	if rewardPort == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "reward value-transfer port required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "notification emitter required")
	}
	d := &Distributor{
		records:    make(map[recordKey]*Record),
		rewardPort: rewardPort,
		emitter:    emitter,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// emit publishes a notification once the records or the payout are already
// committed. Failures are logged and dropped, not surfaced.
func (d *Distributor) emit(ctx context.Context, eventType notify.EventType, payload any) {
	if err := d.emitter.Emit(ctx, eventType, payload); err != nil && d.logg != nil {
		d.logg.Error(d.logg.WithField(ctx, "event_type", string(eventType)), "notification emit failed", err)
	}
}

// Record splits totalRewardPool across contributions proportionally to units,
// truncating each share. The sum of recorded rewards never exceeds the pool;
// division dust stays unassigned. The ledger invokes this exactly once per
// settled order. The balance check against the port is a defensive
// double-check of the caller's accounting.
func (d *Distributor) Record(ctx context.Context, orderID uint64, totalRewardPool, totalUnitsInOrder int64, contributions []Contribution, poolAccount uuid.UUID) error {
	if totalRewardPool <= 0 || totalUnitsInOrder <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reward pool and total units must be positive")
	}

	held, err := d.rewardPort.BalanceOf(ctx, poolAccount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reward pool balance")
	}
	if held < totalRewardPool {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "reward pool balance below recorded total")
	}

	var recorded []*Record
	for _, c := range contributions {
		if c.UnitsOrdered <= 0 {
			continue
		}
		reward := totalRewardPool * c.UnitsOrdered / totalUnitsInOrder
		if reward <= 0 {
			continue
		}
		recorded = append(recorded, &Record{
			OrderID:    orderID,
			RetailerID: c.RetailerID,
			Amount:     reward,
			Claimed:    false,
		})
	}

	d.mu.Lock()
	for _, record := range recorded {
		d.records[recordKey{orderID: orderID, retailer: record.RetailerID}] = record
	}
	d.mu.Unlock()

	for _, record := range recorded {
		d.emit(ctx, notify.EventRewardsRecorded, notify.RewardsRecordedEvent{
			OrderID:    orderID,
			RetailerID: record.RetailerID,
			Amount:     record.Amount,
		})
	}
	return nil
}

// Claim pays the caller's recorded reward. The claimed flag flips before the
// transfer goes out so a re-entrant second claim sees it set and fails; a
// failed transfer flips it back, leaving the operation without effect.
func (d *Distributor) Claim(ctx context.Context, orderID uint64, callerID uuid.UUID) (int64, error) {
	d.mu.Lock()
	record, ok := d.records[recordKey{orderID: orderID, retailer: callerID}]
	if !ok || record.Amount == 0 {
		d.mu.Unlock()
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "no reward recorded for caller")
	}
	if record.Claimed {
		d.mu.Unlock()
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "reward already claimed")
	}
	record.Claimed = true
	d.mu.Unlock()

	if err := d.rewardPort.Transfer(ctx, callerID, record.Amount); err != nil {
		d.mu.Lock()
		record.Claimed = false
		d.mu.Unlock()
		return 0, pkgerrors.Wrap(pkgerrors.CodeInsufficientFunds, err, "pay reward claim")
	}

	d.emit(ctx, notify.EventRewardClaimed, notify.RewardClaimedEvent{
		OrderID:    orderID,
		RetailerID: callerID,
		Amount:     record.Amount,
	})
	return record.Amount, nil
}

// RewardFor returns a copy of the caller's record, if any.
func (d *Distributor) RewardFor(orderID uint64, retailerID uuid.UUID) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.records[recordKey{orderID: orderID, retailer: retailerID}]
	if !ok {
		return Record{}, false
	}
	return *record, true
}
