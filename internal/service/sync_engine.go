package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"

	"github.com/rs/zerolog"
)

const defaultFetchWorkers = 8

// SyncOptions tunes a SyncEngine.
type SyncOptions struct {
	Workers       int           // concurrent row fetches per pass
	FetchTimeout  time.Duration // upper bound for one pass; 0 means none
	SubmitTimeout time.Duration // upper bound for one ledger write; 0 means none
}

// SyncEngine keeps a role-scoped, locally cached view of the ledger and
// routes user actions to it. Implements ports.SyncService.
type SyncEngine struct {
	ledger   ports.LedgerClient
	identity ports.IdentityProvider
	scope    domain.ViewScope
	opts     SyncOptions
	log      zerolog.Logger
	now      func() time.Time

	// base bounds every resync pass; cancelled by Close.
	base   context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	records     map[uint64]*domain.TrackedTransaction
	faults      map[uint64]ports.IntegrityFault
	lastSummary *ports.SyncSummary
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error

	runMu   sync.Mutex
	current *resyncRun
	next    *resyncRun

	locks keyedLocks
}

// NewSyncEngine creates an engine acting as identity. The view scope is
// derived from the identity role.
func NewSyncEngine(
	ledger ports.LedgerClient,
	identity ports.IdentityProvider,
	opts SyncOptions,
	log zerolog.Logger,
) (*SyncEngine, error) {
	scope, err := domain.ScopeFor(identity.Role(), identity.Address())
	if err != nil {
		return nil, fmt.Errorf("deriving view scope: %w", err)
	}
	if opts.Workers < 1 {
		opts.Workers = defaultFetchWorkers
	}

	base, cancel := context.WithCancel(context.Background())
	return &SyncEngine{
		ledger:   ledger,
		identity: identity,
		scope:    scope,
		opts:     opts,
		log:      log.With().Str("scope", scope.String()).Logger(),
		now:      time.Now,
		base:     base,
		cancel:   cancel,
		records:  make(map[uint64]*domain.TrackedTransaction),
		faults:   make(map[uint64]ports.IntegrityFault),
	}, nil
}

// Close aborts any running resync pass. Waiting callers receive its error.
func (e *SyncEngine) Close() {
	e.cancel()
}

// writeContext bounds a single ledger write by SubmitTimeout.
func (e *SyncEngine) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.SubmitTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.SubmitTimeout)
	}
	return context.WithCancel(ctx)
}

// Scope returns the view scope the engine filters by.
func (e *SyncEngine) Scope() domain.ViewScope {
	return e.scope
}

// Snapshot returns copies of every cached record ordered by id.
func (e *SyncEngine) Snapshot() []domain.TrackedTransaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.TrackedTransaction, 0, len(e.records))
	for _, rec := range e.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one cached record.
func (e *SyncEngine) Get(id uint64) (*domain.TrackedTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[id]
	if !ok {
		return nil, apperror.ErrNotFound("Transaction")
	}
	c := rec.Clone()
	return &c, nil
}

// Status reports the outcome of recent resync passes.
func (e *SyncEngine) Status() ports.SyncStatus {
	e.runMu.Lock()
	running := e.current != nil
	e.runMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	st := ports.SyncStatus{
		Scope:      e.scope.String(),
		Records:    len(e.records),
		InProgress: running,
	}
	if e.lastSummary != nil {
		s := cloneSummary(e.lastSummary)
		st.LastSummary = &s
	}
	if !e.lastAttempt.IsZero() {
		t := e.lastAttempt
		st.LastAttemptAt = &t
	}
	if !e.lastSuccess.IsZero() {
		t := e.lastSuccess
		st.LastSuccessAt = &t
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	for _, f := range e.faults {
		st.Faults = append(st.Faults, f)
	}
	sort.Slice(st.Faults, func(i, j int) bool {
		return st.Faults[i].TransactionID < st.Faults[j].TransactionID
	})
	return st
}

// Stats counts cached records by effective state.
func (e *SyncEngine) Stats() ports.TransactionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ports.TransactionStats{
		Total:   len(e.records),
		ByState: make(map[string]int, len(domain.AllStates())),
	}
	for _, s := range domain.AllStates() {
		stats.ByState[s.Label()] = 0
	}
	for _, rec := range e.records {
		stats.ByState[rec.EffectiveState().Label()]++
		if rec.IsPending() {
			stats.Pending++
		}
		if rec.Desynced {
			stats.Desynced++
		}
	}
	return stats
}

func cloneSummary(s *ports.SyncSummary) ports.SyncSummary {
	c := *s
	if s.Failures != nil {
		c.Failures = append([]ports.RowFailure(nil), s.Failures...)
	}
	return c
}
