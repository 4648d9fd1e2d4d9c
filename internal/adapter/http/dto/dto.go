package dto

import (
	"time"

	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
)

// CreatePaymentRequest is the request body for initiating a payment.
type CreatePaymentRequest struct {
	Merchant  string `json:"merchant" binding:"required,max=100,safe_id"`
	ProductID string `json:"product_id" binding:"required,max=100"` // opaque to the ledger
	Amount    uint64 `json:"amount" binding:"required,gt=0"` // ledger base unit
}

// TransactionResponse is one record of the local view.
type TransactionResponse struct {
	ID           uint64           `json:"id"`
	Customer     string           `json:"customer"`
	Merchant     string           `json:"merchant"`
	ProductID    string           `json:"product_id"`
	Amount       uint64           `json:"amount"`
	State        string           `json:"state"`        // effective state
	LedgerState  string           `json:"ledger_state"` // last value read from the ledger
	Pending      *PendingResponse `json:"pending,omitempty"`
	Desynced     bool             `json:"desynced"`
	LastSyncedAt string           `json:"last_synced_at"`
}

// PendingResponse describes an optimistic transition awaiting confirmation.
type PendingResponse struct {
	Operation string `json:"operation"`
	Target    string `json:"target"`
	AppliedAt string `json:"applied_at"`
}

// TransactionListResponse is the response body for the transaction list.
type TransactionListResponse struct {
	Scope        string                `json:"scope"`
	Total        int                   `json:"total"`
	Transactions []TransactionResponse `json:"transactions"`
}

// ReceiptResponse is the response body for an accepted ledger write.
type ReceiptResponse struct {
	Hash          string `json:"hash"`
	Operation     string `json:"operation"`
	Method        string `json:"method"`
	TransactionID uint64 `json:"transaction_id"`
	Actor         string `json:"actor"`
	State         string `json:"state"`
	AcceptedAt    string `json:"accepted_at"`
}

// PendingActionResponse is returned when a write was sent but the ledger's
// answer never arrived.
type PendingActionResponse struct {
	Operation     string  `json:"operation"`
	TransactionID *uint64 `json:"transaction_id,omitempty"`
	Status        string  `json:"status"`
	Message       string  `json:"message"`
}

// SyncResponse is the response body for an on-demand resync.
type SyncResponse struct {
	Partial bool               `json:"partial"`
	Summary *ports.SyncSummary `json:"summary"`
}

// NewTransactionResponse converts a tracked record for the API.
func NewTransactionResponse(t *domain.TrackedTransaction) TransactionResponse {
	resp := TransactionResponse{
		ID:           t.ID,
		Customer:     t.Customer,
		Merchant:     t.Merchant,
		ProductID:    t.ProductID,
		Amount:       t.Amount,
		State:        t.EffectiveState().Label(),
		LedgerState:  t.State.Label(),
		Desynced:     t.Desynced,
		LastSyncedAt: formatTime(t.LastSyncedAt),
	}
	if t.Pending != nil {
		resp.Pending = &PendingResponse{
			Operation: t.Pending.Operation.Path(),
			Target:    t.Pending.Target.Label(),
			AppliedAt: formatTime(t.Pending.AppliedAt),
		}
	}
	return resp
}

// NewReceiptResponse converts a ledger receipt for the API.
func NewReceiptResponse(r *domain.Receipt) ReceiptResponse {
	return ReceiptResponse{
		Hash:          r.Hash,
		Operation:     string(r.Operation),
		Method:        r.Operation.Method(),
		TransactionID: r.TransactionID,
		Actor:         r.Actor,
		State:         r.State.Label(),
		AcceptedAt:    formatTime(r.AcceptedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
