package ports

import (
	"context"
	"errors"
	"time"

	"payment-tracker/internal/core/domain"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// TokenService handles JWT token operations for the presentation API.
type TokenService interface {
	Generate(address string, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Address string
	Role    domain.Role
}

// ErrRequestInFlight is returned by IdempotencyCache.Get while the request
// holding the key has not stored its response yet.
var ErrRequestInFlight = errors.New("request with this idempotency key is in flight")

// IdempotencyCache stores the first response to a write request so that a
// repeated request is answered without reaching the ledger again. A key is
// claimed before the request runs and then either filled or released.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// --- Service Ports (Business Logic) ---

// SyncService is the local, role-scoped view of the ledger together with
// the action entry points that mutate it.
type SyncService interface {
	Resync(ctx context.Context) (*SyncSummary, error)
	Submit(ctx context.Context, op domain.Operation, id uint64) (*domain.Receipt, error)
	Create(ctx context.Context, req CreatePaymentRequest) (*domain.Receipt, error)
	Snapshot() []domain.TrackedTransaction
	Get(id uint64) (*domain.TrackedTransaction, error)
	Status() SyncStatus
	Stats() TransactionStats
}

// CreatePaymentRequest holds validated input for initiating a payment.
type CreatePaymentRequest struct {
	Merchant  string
	ProductID string
	Amount    uint64
}

// SyncSummary reports the outcome of one resync pass.
type SyncSummary struct {
	Count      uint64       `json:"count"`   // transactionCount observed at the start
	Fetched    int          `json:"fetched"` // rows read and committed
	Failed     int          `json:"failed"`  // rows whose read failed
	Corrupt    int          `json:"corrupt"` // rows excluded as malformed
	Skipped    int          `json:"skipped"` // rows outside the view scope
	Failures   []RowFailure `json:"failures,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Partial reports whether some rows could not be refreshed.
func (s *SyncSummary) Partial() bool {
	return s.Failed > 0 || s.Corrupt > 0
}

// RowFailure records a single row that did not make it into the view.
type RowFailure struct {
	TransactionID uint64 `json:"transaction_id"`
	Code          string `json:"error_code"`
	Error         string `json:"error"`
}

// IntegrityFault flags a ledger row excluded from the view because its
// content is malformed.
type IntegrityFault struct {
	TransactionID uint64    `json:"transaction_id"`
	Error         string    `json:"error"`
	DetectedAt    time.Time `json:"detected_at"`
}

// SyncStatus is the resync-status summary exposed to the presentation layer.
type SyncStatus struct {
	Scope         string           `json:"scope"`
	Records       int              `json:"records"`
	InProgress    bool             `json:"in_progress"`
	LastSummary   *SyncSummary     `json:"last_summary,omitempty"`
	LastAttemptAt *time.Time       `json:"last_attempt_at,omitempty"`
	LastSuccessAt *time.Time       `json:"last_success_at,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	Faults        []IntegrityFault `json:"faults,omitempty"`
}

// TransactionStats counts the local view by effective state label.
type TransactionStats struct {
	Total    int            `json:"total"`
	Pending  int            `json:"pending"`
	Desynced int            `json:"desynced"`
	ByState  map[string]int `json:"by_state"`
}
