package macrolog

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ============================================================================
// Sync Engine
// ============================================================================

// SyncFailure describes one queued request that could not be replayed during
// a drain cycle.
type SyncFailure struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Method    string `json:"method"`
	Error     string `json:"error"`
	Abandoned bool   `json:"abandoned"`
}

// SyncResult aggregates one drain cycle. It is reported to the notifier as a
// single summary rather than one notification per record.
type SyncResult struct {
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Abandoned int           `json:"abandoned"`
	Failures  []SyncFailure `json:"failures,omitempty"`
}

// Drain replays every pending queued request against the real API, strictly
// sequentially and in enqueue order: the replay for record N+1 is not issued
// until record N's outcome is known, so causally dependent offline actions
// land in order.
//
// Each record gets exactly one attempt per cycle. Success removes the record;
// failure leaves it queued for the next cycle, or abandons it once the retry
// limit is exhausted. Returns ErrOffline while the connectivity monitor
// reports offline and ErrSyncInProgress when a cycle is already running.
func (o *OfflineManager) Drain(ctx context.Context) (*SyncResult, error) {
	o.mu.Lock()
	if !o.online {
		o.mu.Unlock()
		return nil, ErrOffline
	}
	if o.draining {
		o.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	o.draining = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.draining = false
		o.mu.Unlock()
	}()

	result := &SyncResult{}
	if o.store == nil {
		return result, nil
	}

	// Requests enqueued while this cycle runs are not visited; the next
	// cycle picks them up.
	reqs, err := o.store.ListQueuedRequests()
	if err != nil {
		return nil, fmt.Errorf("failed to list queued requests: %w", err)
	}

	pending := reqs[:0]
	for _, req := range reqs {
		if req.Status == StatusPending {
			pending = append(pending, req)
		}
	}
	// An empty cycle is not worth a notification; reconnects would
	// otherwise surface a summary with nothing in it.
	if len(pending) == 0 {
		return result, nil
	}

	o.emit(EventSyncStart, nil)

	for _, req := range pending {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		_, sendErr := o.client.send(ctx, req.Method, req.URL, req.Headers, req.Body)
		if sendErr == nil {
			if rerr := o.store.RemoveQueuedRequest(req.ID); rerr != nil {
				o.log.Warn("failed to remove delivered request", zap.String("id", req.ID), zap.Error(rerr))
			}
			result.Synced++
			o.emit(EventSyncSent, req.ID)
			continue
		}

		attempts := req.Attempts + 1
		abandon := o.retryLimit > 0 && attempts >= o.retryLimit
		if ferr := o.store.RecordFailure(req.ID, sendErr.Error(), abandon); ferr != nil {
			o.log.Warn("failed to record replay failure", zap.String("id", req.ID), zap.Error(ferr))
		}
		result.Failed++
		if abandon {
			result.Abandoned++
			o.log.Warn("abandoning queued request after retry limit",
				zap.String("id", req.ID), zap.String("url", req.URL), zap.Int("attempts", attempts))
		}
		result.Failures = append(result.Failures, SyncFailure{
			ID:        req.ID,
			URL:       req.URL,
			Method:    req.Method,
			Error:     sendErr.Error(),
			Abandoned: abandon,
		})
		o.emit(EventSyncFailed, req.ID)
	}

	o.emit(EventSyncComplete, result)
	o.notifySync(result)
	return result, nil
}

func (o *OfflineManager) notifySync(result *SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Warn("notifier panicked", zap.Any("panic", r))
		}
	}()
	o.notifier.SyncCompleted(*result)
}
