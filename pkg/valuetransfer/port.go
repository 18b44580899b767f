// Package valuetransfer abstracts the external service that moves fungible
// value between participant accounts. The ledger consumes two independent
// instances: one for payment value and one for reward value.
package valuetransfer

import (
	"context"

	"github.com/google/uuid"
)

// Port is the capability the ledger needs from a value-transfer service.
// Amounts are non-negative integers in the service's smallest unit.
// Implementations are assumed atomic: a returned error means no value moved.
type Port interface {
	// TransferFrom moves value out of a participant account into another.
	TransferFrom(ctx context.Context, from, to uuid.UUID, amount int64) error
	// Transfer moves value out of the ledger's own holdings.
	Transfer(ctx context.Context, to uuid.UUID, amount int64) error
	// BalanceOf reports the balance held by the given account.
	BalanceOf(ctx context.Context, id uuid.UUID) (int64, error)
}
