package valuetransfer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

// MemoryBank is an in-process Port used by dev mode and tests. The bank's
// own holdings live under a reserved self account so Transfer and
// TransferFrom share one balance table.
type MemoryBank struct {
	mu       sync.Mutex
	self     uuid.UUID
	balances map[uuid.UUID]int64
}

// NewMemoryBank returns an empty bank with its own holding account.
func NewMemoryBank(self uuid.UUID) *MemoryBank {
	return &MemoryBank{
		self:     self,
		balances: make(map[uuid.UUID]int64),
	}
}

// Self returns the bank's holding account identifier.
func (b *MemoryBank) Self() uuid.UUID {
	return b.self
}

// Seed credits an account out of thin air. Test and dev setup only.
func (b *MemoryBank) Seed(id uuid.UUID, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[id] += amount
}

func (b *MemoryBank) TransferFrom(ctx context.Context, from, to uuid.UUID, amount int64) error {
	return b.move(from, to, amount)
}

func (b *MemoryBank) Transfer(ctx context.Context, to uuid.UUID, amount int64) error {
	return b.move(b.self, to, amount)
}

func (b *MemoryBank) BalanceOf(ctx context.Context, id uuid.UUID) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[id], nil
}

func (b *MemoryBank) move(from, to uuid.UUID, amount int64) error {
	if amount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be non-negative")
	}
	if amount == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[from] < amount {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "account balance below transfer amount")
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}
