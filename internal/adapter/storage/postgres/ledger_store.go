package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"payment-tracker/internal/adapter/storage"
	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// LedgerStore implements ports.LedgerClient on PostgreSQL. Transition and
// party rules are enforced inside the UPDATE predicate so concurrent
// writers cannot skip a state.
type LedgerStore struct {
	pool Pool
	now  func() time.Time
}

var _ ports.LedgerClient = (*LedgerStore)(nil)

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool Pool) *LedgerStore {
	return &LedgerStore{pool: pool, now: time.Now}
}

// TransactionCount returns the number of recorded transactions.
func (s *LedgerStore) TransactionCount(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions`).Scan(&n); err != nil {
		return 0, apperror.ErrConnectivity(fmt.Errorf("count transactions: %w", err))
	}
	return uint64(n), nil
}

// GetTransaction reads one transaction. The state is returned raw.
func (s *LedgerStore) GetTransaction(ctx context.Context, id uint64) (*domain.Transaction, error) {
	if id > math.MaxInt64 {
		return nil, apperror.ErrNotFound("Transaction")
	}
	query := `SELECT id, customer, merchant, product_id, amount, state
		FROM ledger_transactions WHERE id = $1`

	var (
		rowID, amount int64
		state         int16
		tx            domain.Transaction
	)
	err := s.pool.QueryRow(ctx, query, int64(id)).
		Scan(&rowID, &tx.Customer, &tx.Merchant, &tx.ProductID, &amount, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrNotFound("Transaction")
	}
	if err != nil {
		return nil, apperror.ErrConnectivity(fmt.Errorf("get transaction %d: %w", id, err))
	}

	tx.ID = uint64(rowID)
	tx.Amount = uint64(max(amount, 0))
	tx.State = domain.StateFromRaw(int64(state))
	return &tx, nil
}

// Submit applies a role-gated transition in one database transaction.
func (s *LedgerStore) Submit(ctx context.Context, req ports.SubmitRequest) (*domain.Receipt, error) {
	role, ok := req.Operation.Actor()
	if !ok {
		return nil, apperror.ErrRejected(fmt.Errorf("unknown method %q", req.Operation))
	}
	if req.TransactionID > math.MaxInt64 {
		return nil, apperror.ErrNotFound("Transaction")
	}
	from, _ := req.Operation.Source()
	to := domain.NextState(from, req.Operation)
	id := int64(req.TransactionID)

	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, writeError(ctx, "begin", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// partyColumn only ever holds one of two fixed column names.
	query := fmt.Sprintf(`UPDATE ledger_transactions SET state = $1
		WHERE id = $2 AND state = $3 AND %s = $4`, partyColumn(role))
	tag, err := dbTx.Exec(ctx, query, int16(to), id, int16(from), req.Actor)
	if err != nil {
		return nil, writeError(ctx, req.Operation.Method(), err)
	}
	if tag.RowsAffected() == 0 {
		return nil, s.explainRefusal(ctx, dbTx, req, role)
	}

	seq, err := appendEvent(ctx, dbTx, id, req.Operation.Method(), req.Actor, &from, to)
	if err != nil {
		return nil, writeError(ctx, req.Operation.Method(), err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrConnectivity(fmt.Errorf("commit %s: %w", req.Operation.Method(), err))
	}

	return storage.NewReceipt(req.Operation, req.TransactionID, req.Actor, to, seq, s.now()), nil
}

// CreateTransaction records a new payment with the next dense id.
func (s *LedgerStore) CreateTransaction(ctx context.Context, req ports.CreateRequest) (*domain.Receipt, error) {
	if req.Amount == 0 || req.Amount > math.MaxInt64 {
		return nil, apperror.ErrRejected(fmt.Errorf("payment value out of range: %d", req.Amount))
	}
	if req.Actor == "" || req.Merchant == "" {
		return nil, apperror.ErrRejected(fmt.Errorf("customer and merchant are required"))
	}

	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, writeError(ctx, "begin", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Serializes creators so ids stay dense.
	if _, err := dbTx.Exec(ctx, `LOCK TABLE ledger_transactions IN EXCLUSIVE MODE`); err != nil {
		return nil, writeError(ctx, "lock", err)
	}

	var id int64
	if err := dbTx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions`).Scan(&id); err != nil {
		return nil, writeError(ctx, "count", err)
	}

	_, err = dbTx.Exec(ctx,
		`INSERT INTO ledger_transactions (id, customer, merchant, product_id, amount, state)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, req.Actor, req.Merchant, req.ProductID, int64(req.Amount), int16(domain.StateInitiated),
	)
	if err != nil {
		return nil, writeError(ctx, "initiatePayment", err)
	}

	seq, err := appendEvent(ctx, dbTx, id, domain.OpInitiatePayment.Method(), req.Actor, nil, domain.StateInitiated)
	if err != nil {
		return nil, writeError(ctx, "initiatePayment", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrConnectivity(fmt.Errorf("commit initiatePayment: %w", err))
	}

	return storage.NewReceipt(domain.OpInitiatePayment, uint64(id), req.Actor, domain.StateInitiated, seq, s.now()), nil
}

// explainRefusal classifies a transition UPDATE that matched no row.
func (s *LedgerStore) explainRefusal(ctx context.Context, dbTx pgx.Tx, req ports.SubmitRequest, role domain.Role) error {
	var (
		current            domain.Transaction
		state              int16
		customer, merchant string
	)
	err := dbTx.QueryRow(ctx,
		`SELECT customer, merchant, state FROM ledger_transactions WHERE id = $1`,
		int64(req.TransactionID),
	).Scan(&customer, &merchant, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.ErrNotFound("Transaction")
	}
	if err != nil {
		return writeError(ctx, req.Operation.Method(), err)
	}

	current.Customer, current.Merchant = customer, merchant
	current.State = domain.StateFromRaw(int64(state))
	if current.PartyFor(role) != req.Actor {
		return apperror.ErrUnauthorized(fmt.Errorf("%s may only be called by the %s", req.Operation.Method(), role))
	}
	return apperror.ErrRejected(fmt.Errorf("%s not allowed in state %s", req.Operation.Method(), current.State))
}

func appendEvent(ctx context.Context, dbTx pgx.Tx, id int64, method, actor string, from *domain.State, to domain.State) (uint64, error) {
	var fromArg *int16
	if from != nil {
		v := int16(*from)
		fromArg = &v
	}

	var seq int64
	err := dbTx.QueryRow(ctx,
		`INSERT INTO ledger_events (transaction_id, method, actor, from_state, to_state)
		VALUES ($1, $2, $3, $4, $5) RETURNING seq`,
		id, method, actor, fromArg, int16(to),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append ledger event: %w", err)
	}
	return uint64(seq), nil
}

func partyColumn(role domain.Role) string {
	if role == domain.RoleMerchant {
		return "merchant"
	}
	return "customer"
}

// writeError maps a failed write. Errors raised by the server mean the write
// was refused; anything else leaves the outcome unknown.
func writeError(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return apperror.ErrConnectivity(fmt.Errorf("%s: %w", step, ctx.Err()))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return apperror.ErrRejected(fmt.Errorf("%s: %s (%s)", step, pgErr.Message, pgErr.Code))
	}
	return apperror.ErrConnectivity(fmt.Errorf("%s: %w", step, err))
}
