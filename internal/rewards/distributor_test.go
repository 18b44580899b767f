package rewards

import (
	"context"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
	"github.com/angelmondragon/groupbuy-backend/pkg/notify"
	"github.com/angelmondragon/groupbuy-backend/pkg/valuetransfer"
)

func newTestDistributor(t *testing.T, poolBalance int64) (*Distributor, *valuetransfer.MemoryBank, *notify.MemoryEmitter, uuid.UUID) {
	t.Helper()
	bank := valuetransfer.NewMemoryBank(uuid.New())
	pool := bank.Self()
	bank.Seed(pool, poolBalance)
	emitter := &notify.MemoryEmitter{}
	d, err := NewDistributor(bank, emitter)
	if err != nil {
		t.Fatalf("NewDistributor: %v", err)
	}
	return d, bank, emitter, pool
}

func TestRecordProportionalSplit(t *testing.T) {
	d, _, emitter, pool := newTestDistributor(t, 100)
	ctx := context.Background()

	a := uuid.New()
	b := uuid.New()
	c := uuid.New()
	contributions := []Contribution{
		{RetailerID: a, UnitsOrdered: 50},
		{RetailerID: b, UnitsOrdered: 30},
		{RetailerID: c, UnitsOrdered: 20},
	}

	if err := d.Record(ctx, 1, 100, 100, contributions, pool); err != nil {
		t.Fatalf("Record: %v", err)
	}

	for _, tc := range []struct {
		retailer uuid.UUID
		want     int64
	}{{a, 50}, {b, 30}, {c, 20}} {
		record, ok := d.RewardFor(1, tc.retailer)
		if !ok {
			t.Fatalf("expected record for retailer %s", tc.retailer)
		}
		if record.Amount != tc.want || record.Claimed {
			t.Fatalf("record = %+v, want amount %d unclaimed", record, tc.want)
		}
	}

	if got := len(emitter.OfType(notify.EventRewardsRecorded)); got != 3 {
		t.Fatalf("expected 3 recorded notifications, got %d", got)
	}
}

func TestRecordDustBound(t *testing.T) {
	d, _, _, pool := newTestDistributor(t, 1000)
	ctx := context.Background()

	// 7 contributors over prime-ish unit counts so every share truncates.
	units := []int64{13, 17, 19, 23, 29, 31, 37}
	var total int64
	var contributions []Contribution
	retailers := make([]uuid.UUID, len(units))
	for i, u := range units {
		retailers[i] = uuid.New()
		contributions = append(contributions, Contribution{RetailerID: retailers[i], UnitsOrdered: u})
		total += u
	}

	const poolAmount = int64(997)
	if err := d.Record(ctx, 2, poolAmount, total, contributions, pool); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var distributed int64
	for _, r := range retailers {
		record, ok := d.RewardFor(2, r)
		if !ok {
			t.Fatalf("missing record")
		}
		distributed += record.Amount
	}
	if distributed > poolAmount {
		t.Fatalf("distributed %d exceeds pool %d", distributed, poolAmount)
	}
	if dust := poolAmount - distributed; dust >= int64(len(units)) {
		t.Fatalf("dust %d should be below one unit per contributor (%d)", dust, len(units))
	}
}

func TestRecordValidation(t *testing.T) {
	d, _, _, pool := newTestDistributor(t, 100)
	ctx := context.Background()
	contributions := []Contribution{{RetailerID: uuid.New(), UnitsOrdered: 10}}

	if err := d.Record(ctx, 3, 0, 10, contributions, pool); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("zero pool should fail validation, got %v", err)
	}
	if err := d.Record(ctx, 3, 10, 0, contributions, pool); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("zero units should fail validation, got %v", err)
	}
	if _, ok := d.RewardFor(3, contributions[0].RetailerID); ok {
		t.Fatal("failed record must perform no writes")
	}
}

func TestRecordBalanceDoubleCheck(t *testing.T) {
	d, _, _, pool := newTestDistributor(t, 5)
	ctx := context.Background()
	contributions := []Contribution{{RetailerID: uuid.New(), UnitsOrdered: 10}}

	err := d.Record(ctx, 4, 10, 10, contributions, pool)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds when pool balance is short, got %v", err)
	}
}

func TestRecordSkipsZeroShares(t *testing.T) {
	d, _, emitter, pool := newTestDistributor(t, 100)
	ctx := context.Background()

	tiny := uuid.New()
	big := uuid.New()
	contributions := []Contribution{
		{RetailerID: tiny, UnitsOrdered: 1}, // floor(3*1/1000) = 0
		{RetailerID: big, UnitsOrdered: 999},
	}
	if err := d.Record(ctx, 5, 3, 1000, contributions, pool); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if _, ok := d.RewardFor(5, tiny); ok {
		t.Fatal("zero share should create no record")
	}
	if record, ok := d.RewardFor(5, big); !ok || record.Amount != 2 {
		t.Fatalf("big share record = %+v", record)
	}
	if got := len(emitter.OfType(notify.EventRewardsRecorded)); got != 1 {
		t.Fatalf("expected 1 notification, got %d", got)
	}
}

func TestClaimPaysOnce(t *testing.T) {
	d, bank, emitter, pool := newTestDistributor(t, 100)
	ctx := context.Background()

	retailer := uuid.New()
	if err := d.Record(ctx, 6, 100, 100, []Contribution{{RetailerID: retailer, UnitsOrdered: 100}}, pool); err != nil {
		t.Fatalf("Record: %v", err)
	}

	amount, err := d.Claim(ctx, 6, retailer)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if amount != 100 {
		t.Fatalf("claimed %d, want 100", amount)
	}
	if got, _ := bank.BalanceOf(ctx, retailer); got != 100 {
		t.Fatalf("retailer balance = %d, want 100", got)
	}

	if _, err := d.Claim(ctx, 6, retailer); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("second claim should conflict, got %v", err)
	}
	if got, _ := bank.BalanceOf(ctx, retailer); got != 100 {
		t.Fatalf("second claim must not transfer again, balance = %d", got)
	}
	if got := len(emitter.OfType(notify.EventRewardClaimed)); got != 1 {
		t.Fatalf("expected exactly 1 claim notification, got %d", got)
	}
}

func TestClaimUnknownCaller(t *testing.T) {
	d, _, _, _ := newTestDistributor(t, 100)
	if _, err := d.Claim(context.Background(), 99, uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimRollsBackOnTransferFailure(t *testing.T) {
	// Pool funded enough to pass the record-time check, then drained so the
	// payout fails: the claimed flag must roll back.
	d, bank, _, pool := newTestDistributor(t, 100)
	ctx := context.Background()

	retailer := uuid.New()
	if err := d.Record(ctx, 7, 100, 100, []Contribution{{RetailerID: retailer, UnitsOrdered: 100}}, pool); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := bank.TransferFrom(ctx, pool, uuid.New(), 100); err != nil {
		t.Fatalf("drain pool: %v", err)
	}

	if _, err := d.Claim(ctx, 7, retailer); !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	record, _ := d.RewardFor(7, retailer)
	if record.Claimed {
		t.Fatal("claimed flag must roll back after failed transfer")
	}

	// Refund the pool; the claim should now succeed.
	bank.Seed(pool, 100)
	if _, err := d.Claim(ctx, 7, retailer); err != nil {
		t.Fatalf("claim after refill: %v", err)
	}
}
