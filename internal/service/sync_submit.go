package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"
)

// Submit performs op on transaction id as the engine identity.
//
// The transition is checked against the effective cached state before the
// ledger is contacted and shown as pending until a resync confirms it.
// Submissions for the same id are serialized; different ids proceed in
// parallel.
func (e *SyncEngine) Submit(ctx context.Context, op domain.Operation, id uint64) (*domain.Receipt, error) {
	if !op.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown operation %q", op))
	}

	release, err := e.locks.acquire(ctx, id)
	if err != nil {
		return nil, apperror.ErrConnectivity(err).For(string(op), id)
	}
	defer release()

	pending, err := e.applyPending(op, id)
	if err != nil {
		return nil, err
	}

	log := e.log.With().Str("operation", string(op)).Uint64("transaction_id", id).Logger()

	writeCtx, cancel := e.writeContext(ctx)
	defer cancel()
	receipt, err := e.ledger.Submit(writeCtx, ports.SubmitRequest{
		Operation:     op,
		TransactionID: id,
		Actor:         e.identity.Address(),
	})
	if err != nil {
		switch {
		case writeCtx.Err() != nil:
			e.rollback(id, pending)
			log.Info().Err(writeCtx.Err()).Msg("Submission cancelled, resync required")
			return nil, apperror.ErrConnectivity(writeCtx.Err()).For(string(op), id)
		case apperror.HasCode(err, apperror.CodeRejected),
			apperror.HasCode(err, apperror.CodeUnauthorized),
			apperror.HasCode(err, apperror.CodeNotFound):
			e.rollback(id, pending)
			log.Warn().Err(err).Msg("Ledger refused submission")
			return nil, annotate(err, string(op), id)
		default:
			log.Warn().Err(err).Msg("Submission outcome unknown, keeping pending")
			return nil, annotate(err, string(op), id)
		}
	}

	e.mu.Lock()
	if rec, ok := e.records[id]; ok {
		rec.Desynced = false
	}
	e.mu.Unlock()
	release()

	log.Info().Str("hash", receipt.Hash).Msg("Submission accepted")

	if _, err := e.Resync(ctx); err != nil {
		log.Warn().Err(err).Msg("Resync after submission failed")
	}
	return receipt, nil
}

// Create initiates a payment to req.Merchant. Only a customer may create.
func (e *SyncEngine) Create(ctx context.Context, req ports.CreatePaymentRequest) (*domain.Receipt, error) {
	role := e.identity.Role()
	if !domain.CanInitiate(role) {
		appErr := apperror.ErrInvalidTransition("(new)", string(role))
		appErr.Operation = string(domain.OpInitiatePayment)
		return nil, appErr
	}

	req.Merchant = strings.TrimSpace(req.Merchant)
	req.ProductID = strings.TrimSpace(req.ProductID)
	switch {
	case req.Merchant == "":
		return nil, apperror.Validation("merchant is required")
	case req.ProductID == "":
		return nil, apperror.Validation("product_id is required")
	case req.Amount == 0:
		return nil, apperror.Validation("amount must be greater than zero")
	}

	writeCtx, cancel := e.writeContext(ctx)
	defer cancel()
	receipt, err := e.ledger.CreateTransaction(writeCtx, ports.CreateRequest{
		Merchant:  req.Merchant,
		ProductID: req.ProductID,
		Amount:    req.Amount,
		Actor:     e.identity.Address(),
	})
	if err != nil {
		e.log.Warn().Err(err).Str("merchant", req.Merchant).Msg("Payment creation failed")
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			c := *appErr
			c.Operation = string(domain.OpInitiatePayment)
			return nil, &c
		}
		return nil, apperror.ErrConnectivity(err)
	}

	e.log.Info().
		Uint64("transaction_id", receipt.TransactionID).
		Uint64("amount", req.Amount).
		Str("hash", receipt.Hash).
		Msg("Payment created")

	if _, err := e.Resync(ctx); err != nil {
		e.log.Warn().Err(err).Msg("Resync after creation failed")
	}
	return receipt, nil
}

func (e *SyncEngine) applyPending(op domain.Operation, id uint64) (*domain.PendingTransition, error) {
	role := e.identity.Role()

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[id]
	if !ok {
		return nil, apperror.ErrNotFound("Transaction").For(string(op), id)
	}
	current := rec.EffectiveState()
	if !domain.CanTransition(current, op, role) {
		return nil, apperror.ErrInvalidTransition(current.Label(), string(role)).For(string(op), id)
	}
	// merchant review shows other merchants' rows; the ledger would refuse them
	if rec.PartyFor(role) != e.identity.Address() {
		return nil, apperror.ErrNotParty(string(role)).For(string(op), id)
	}

	p := &domain.PendingTransition{
		Operation: op,
		Target:    domain.NextState(current, op),
		AppliedAt: e.now(),
	}
	rec.Pending = p
	return p, nil
}

// rollback removes p if it is still the record's overlay.
func (e *SyncEngine) rollback(id uint64, p *domain.PendingTransition) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.records[id]; ok && rec.Pending == p {
		rec.Pending = nil
	}
}

// annotate tags a ledger error with the attempted call. Unclassified errors
// are treated as connectivity failures: the outcome is unknown.
func annotate(err error, op string, id uint64) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.For(op, id)
	}
	return apperror.ErrConnectivity(err).For(op, id)
}

// keyedLocks serializes work per transaction id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uint64]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// acquire blocks until the lock for id is held or ctx ends. The returned
// release func is safe to call more than once.
func (k *keyedLocks) acquire(ctx context.Context, id uint64) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uint64]*keyedLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				k.unref(id, l)
			})
		}, nil
	case <-ctx.Done():
		k.unref(id, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLocks) unref(id uint64, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}
