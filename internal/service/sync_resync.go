package service

import (
	"context"
	"fmt"
	"time"

	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"

	"golang.org/x/sync/errgroup"
)

// resyncRun is one resync pass shared by every caller that joined it.
type resyncRun struct {
	done    chan struct{}
	summary *ports.SyncSummary
	err     error
}

type rowResult struct {
	tx  *domain.Transaction
	err error
}

// Resync refreshes the view from the ledger.
//
// At most one pass runs at a time. Callers arriving while a pass is running
// join a single follow-up pass, so every caller observes ledger state read
// after its call began. A caller whose ctx ends stops waiting; the pass
// itself carries on.
//
// Row failures do not fail the call; they are reported in the summary.
func (e *SyncEngine) Resync(ctx context.Context) (*ports.SyncSummary, error) {
	run := e.schedule()

	select {
	case <-run.done:
		if run.err != nil {
			return nil, run.err
		}
		s := cloneSummary(run.summary)
		return &s, nil
	case <-ctx.Done():
		return nil, apperror.ErrConnectivity(ctx.Err())
	}
}

func (e *SyncEngine) schedule() *resyncRun {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.current == nil {
		e.current = &resyncRun{done: make(chan struct{})}
		go e.drive(e.current)
		return e.current
	}
	if e.next == nil {
		e.next = &resyncRun{done: make(chan struct{})}
	}
	return e.next
}

// drive runs passes until no follow-up is queued.
func (e *SyncEngine) drive(run *resyncRun) {
	for run != nil {
		run.summary, run.err = e.pass()
		close(run.done)

		e.runMu.Lock()
		run = e.next
		e.next = nil
		e.current = run
		e.runMu.Unlock()
	}
}

func (e *SyncEngine) pass() (*ports.SyncSummary, error) {
	ctx := e.base
	if e.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.FetchTimeout)
		defer cancel()
	}

	started := e.now()
	e.mu.Lock()
	e.lastAttempt = started
	e.mu.Unlock()

	count, err := e.ledger.TransactionCount(ctx)
	if err != nil {
		if !apperror.HasCode(err, apperror.CodeConnectivity) {
			err = apperror.ErrConnectivity(err)
		}
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		e.log.Warn().Err(err).Msg("Resync aborted: transaction count unavailable")
		return nil, err
	}

	results := e.fetchAll(ctx, count)
	summary := e.commit(count, results, started)

	ev := e.log.Info()
	if summary.Partial() {
		ev = e.log.Warn()
	}
	ev.Uint64("count", summary.Count).
		Int("fetched", summary.Fetched).
		Int("failed", summary.Failed).
		Int("corrupt", summary.Corrupt).
		Int("skipped", summary.Skipped).
		Dur("took", summary.FinishedAt.Sub(started)).
		Msg("Resync completed")

	return summary, nil
}

// fetchAll reads rows [0, count) on a bounded pool. Every row is attempted;
// a failed row never cancels its siblings.
func (e *SyncEngine) fetchAll(ctx context.Context, count uint64) []rowResult {
	results := make([]rowResult, count)

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i := uint64(0); i < count; i++ {
		g.Go(func() error {
			tx, err := e.ledger.GetTransaction(ctx, i)
			if err == nil && tx == nil {
				err = apperror.ErrDataIntegrity(fmt.Errorf("empty response"))
			}
			results[i] = rowResult{tx: tx, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// commit applies a finished pass to the view in one critical section.
func (e *SyncEngine) commit(count uint64, results []rowResult, started time.Time) *ports.SyncSummary {
	now := e.now()
	summary := &ports.SyncSummary{Count: count, StartedAt: started}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range results {
		id := uint64(i)

		if r.err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, ports.RowFailure{
				TransactionID: id,
				Code:          apperror.CodeOf(r.err),
				Error:         r.err.Error(),
			})
			continue
		}

		tx := *r.tx
		tx.ID = id

		if !e.scope.Includes(&tx) {
			summary.Skipped++
			delete(e.records, id)
			delete(e.faults, id)
			continue
		}

		if err := tx.Validate(); err != nil {
			summary.Corrupt++
			summary.Failures = append(summary.Failures, ports.RowFailure{
				TransactionID: id,
				Code:          apperror.CodeDataIntegrity,
				Error:         apperror.ErrDataIntegrity(err).Error(),
			})
			delete(e.records, id)
			e.faults[id] = ports.IntegrityFault{TransactionID: id, Error: err.Error(), DetectedAt: now}
			e.log.Error().Err(err).Uint64("transaction_id", id).Msg("Ledger row excluded from view")
			continue
		}

		delete(e.faults, id)
		e.reconcile(tx, now)
		summary.Fetched++
	}

	summary.FinishedAt = now
	e.lastSummary = summary
	if summary.Partial() {
		e.lastErr = fmt.Errorf("partial resync: %d failed, %d corrupt of %d", summary.Failed, summary.Corrupt, count)
	} else {
		e.lastErr = nil
		e.lastSuccess = now
	}

	return summary
}

// reconcile stores tx as authoritative and settles any pending overlay
// against it. Caller holds e.mu.
func (e *SyncEngine) reconcile(tx domain.Transaction, now time.Time) {
	rec, ok := e.records[tx.ID]
	if !ok {
		e.records[tx.ID] = &domain.TrackedTransaction{Transaction: tx, LastSyncedAt: now}
		return
	}

	rec.Transaction = tx
	rec.LastSyncedAt = now
	if rec.Pending == nil {
		return
	}

	target := rec.Pending.Target
	switch {
	case domain.Reachable(target, tx.State):
		// confirmed, or already moved past the target
		rec.Pending = nil
	case domain.Reachable(tx.State, target):
		// not applied yet
	default:
		e.log.Warn().
			Uint64("transaction_id", tx.ID).
			Str("operation", string(rec.Pending.Operation)).
			Str("pending", target.Label()).
			Str("ledger", tx.State.Label()).
			Msg("Ledger diverged from pending transition")
		rec.Pending = nil
		rec.Desynced = true
	}
}
