package ports

import (
	"context"

	"payment-tracker/internal/core/domain"
)

//go:generate mockgen -source=ledger.go -destination=mocks/mock_ledger.go -package=mocks

// LedgerClient is the read/write surface of the remote authoritative store.
//
// Implementations never retry. Errors are *apperror.AppError values with
// one of these codes:
//   - LEDGER_003 (connectivity): outcome unknown. On writes the call may
//     have taken effect; resolve by re-reading, never by resubmitting.
//   - TX_002 (not found): the id is not below the current count.
//   - LEDGER_001 (rejected): the store refused the transition.
//   - LEDGER_002 (unauthorized): the actor may not perform the call.
type LedgerClient interface {
	// TransactionCount returns how many transactions exist at call time.
	TransactionCount(ctx context.Context) (uint64, error)
	// GetTransaction reads one transaction. The state is returned raw and
	// may not be a valid domain.State.
	GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error)
	// Submit performs a role-gated transition.
	Submit(ctx context.Context, req SubmitRequest) (*domain.Receipt, error)
	// CreateTransaction records a new payment in state Initiated.
	CreateTransaction(ctx context.Context, req CreateRequest) (*domain.Receipt, error)
}

// SubmitRequest is a signed state-changing call.
type SubmitRequest struct {
	Operation     domain.Operation
	TransactionID uint64
	Actor         string
	Extra         map[string]string
}

// CreateRequest is a customer's initiatePayment call; Amount is sent as the
// call value.
type CreateRequest struct {
	Merchant  string
	ProductID string
	Amount    uint64
	Actor     string
}

// IdentityProvider supplies the acting party. Key material stays with the
// provider.
type IdentityProvider interface {
	Address() string
	Role() domain.Role
}
