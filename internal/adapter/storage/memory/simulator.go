// Package memory provides an in-process LedgerClient that enforces the same
// transition and party rules as the remote ledger.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"payment-tracker/internal/adapter/storage"
	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"
)

// Simulator simulates the ledger in memory. Transaction ids are dense and
// equal to their index.
type Simulator struct {
	mu  sync.Mutex
	txs []domain.Transaction
	seq uint64
	now func() time.Time
}

var _ ports.LedgerClient = (*Simulator)(nil)

// NewSimulator initializes an empty ledger.
func NewSimulator() *Simulator {
	return &Simulator{now: time.Now}
}

// TransactionCount returns the number of recorded transactions.
func (s *Simulator) TransactionCount(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperror.ErrConnectivity(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.txs)), nil
}

// GetTransaction returns a copy of transaction id.
func (s *Simulator) GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.ErrConnectivity(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id >= uint64(len(s.txs)) {
		return nil, apperror.ErrNotFound("Transaction")
	}
	tx := s.txs[id]
	return &tx, nil
}

// Submit applies a role-gated transition.
func (s *Simulator) Submit(ctx context.Context, req ports.SubmitRequest) (*domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.ErrConnectivity(err)
	}
	role, ok := req.Operation.Actor()
	if !ok {
		return nil, apperror.ErrRejected(fmt.Errorf("unknown method %q", req.Operation))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.TransactionID >= uint64(len(s.txs)) {
		return nil, apperror.ErrNotFound("Transaction")
	}
	tx := &s.txs[req.TransactionID]
	if tx.PartyFor(role) != req.Actor {
		return nil, apperror.ErrUnauthorized(fmt.Errorf("%s may only be called by the %s", req.Operation.Method(), role))
	}
	if !domain.CanTransition(tx.State, req.Operation, role) {
		return nil, apperror.ErrRejected(fmt.Errorf("%s not allowed in state %s", req.Operation.Method(), tx.State))
	}

	tx.State = domain.NextState(tx.State, req.Operation)
	s.seq++
	return storage.NewReceipt(req.Operation, tx.ID, req.Actor, tx.State, s.seq, s.now()), nil
}

// CreateTransaction records a new payment from req.Actor.
func (s *Simulator) CreateTransaction(ctx context.Context, req ports.CreateRequest) (*domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.ErrConnectivity(err)
	}
	if req.Amount == 0 {
		return nil, apperror.ErrRejected(fmt.Errorf("payment value must be positive"))
	}
	if req.Actor == "" || req.Merchant == "" {
		return nil, apperror.ErrRejected(fmt.Errorf("customer and merchant are required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.add(domain.Transaction{
		Customer:  req.Actor,
		Merchant:  req.Merchant,
		ProductID: req.ProductID,
		Amount:    req.Amount,
		State:     domain.StateInitiated,
	})
	s.seq++
	return storage.NewReceipt(domain.OpInitiatePayment, id, req.Actor, domain.StateInitiated, s.seq, s.now()), nil
}

// Seed appends tx as-is, ignoring its ID, and returns the assigned id.
func (s *Simulator) Seed(tx domain.Transaction) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(tx)
}

// ForceState overwrites the stored state with a raw value, bypassing the
// transition rules. Used to reproduce out-of-band ledger changes.
func (s *Simulator) ForceState(id uint64, raw uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id >= uint64(len(s.txs)) {
		return apperror.ErrNotFound("Transaction")
	}
	s.txs[id].State = domain.State(raw)
	return nil
}

func (s *Simulator) add(tx domain.Transaction) uint64 {
	tx.ID = uint64(len(s.txs))
	s.txs = append(s.txs, tx)
	return tx.ID
}
