package macrolog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu          sync.Mutex
	offlineNow  []bool
	syncResults []SyncResult
}

func (n *recordingNotifier) OfflineChanged(offline bool, pending int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offlineNow = append(n.offlineNow, offline)
}

func (n *recordingNotifier) SyncCompleted(result SyncResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncResults = append(n.syncResults, result)
}

func (n *recordingNotifier) results() []SyncResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SyncResult(nil), n.syncResults...)
}

// seedQueue stores n pending meal-log records, foodId 1..n in order.
func seedQueue(t *testing.T, store QueueStore, n int) []string {
	t.Helper()
	var ids []string
	for i := 1; i <= n; i++ {
		req := &QueuedRequest{
			ID:     fmt.Sprintf("%d-seed%d", time.Now().UnixMilli(), i),
			URL:    "/meals",
			Method: "POST",
			Headers: map[string]string{
				"Content-Type":  "application/json",
				"Authorization": "Bearer test-token",
			},
			Body:      json.RawMessage(fmt.Sprintf(`{"foodId":%d,"grams":100}`, i)),
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.AddQueuedRequest(req); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
		ids = append(ids, req.ID)
	}
	return ids
}

func newSyncPair(t *testing.T, handler http.Handler, opts *OfflineOptions) (*OfflineManager, *MemoryStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := NewMemoryStore(nil)
	client := NewClient("test-token", WithBaseURL(server.URL))
	offline := NewOfflineManager(store, client, opts)
	client.AttachOffline(offline)
	t.Cleanup(func() { offline.Close() })
	return offline, store
}

func TestDrain_WhileOffline(t *testing.T) {
	offline, _ := newSyncPair(t, http.NotFoundHandler(), nil)
	forceOffline(offline)

	if _, err := offline.Drain(context.Background()); err != ErrOffline {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
}

func TestDrain_ReplaysInOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		replayed []int
		auths    []string
	)
	offline, store := newSyncPair(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FoodID int `json:"foodId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		replayed = append(replayed, body.FoodID)
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Write([]byte(`{"success":true}`))
	}), nil)

	seedQueue(t, store, 3)

	rec := &eventRecorder{}
	rec.attach(offline, EventSyncStart, EventSyncSent, EventSyncComplete)

	result, err := offline.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Synced != 3 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(replayed) != 3 {
		t.Fatalf("expected 3 replays, got %d", len(replayed))
	}
	for i, foodID := range replayed {
		if foodID != i+1 {
			t.Errorf("replay position %d: expected foodId %d, got %d", i, i+1, foodID)
		}
	}
	for _, auth := range auths {
		if auth != "Bearer test-token" {
			t.Errorf("replay missing captured auth header: %q", auth)
		}
	}

	if offline.PendingCount() != 0 {
		t.Errorf("expected empty queue after drain, got %d", offline.PendingCount())
	}
	if rec.count(EventSyncStart) != 1 || rec.count(EventSyncSent) != 3 || rec.count(EventSyncComplete) != 1 {
		t.Errorf("event counts: start=%d sent=%d complete=%d",
			rec.count(EventSyncStart), rec.count(EventSyncSent), rec.count(EventSyncComplete))
	}
}

func TestDrain_PartialFailure(t *testing.T) {
	offline, store := newSyncPair(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FoodID int `json:"foodId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.FoodID == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"constraint violation"}`))
			return
		}
		w.Write([]byte(`{"success":true}`))
	}), nil)

	ids := seedQueue(t, store, 3)

	result, err := offline.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Synced != 2 || result.Failed != 1 || result.Abandoned != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].ID != ids[1] || result.Failures[0].Abandoned {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}

	// The failed record stays queued for the next cycle, with bookkeeping.
	remaining, err := store.ListQueuedRequests()
	if err != nil {
		t.Fatalf("ListQueuedRequests: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining record, got %d", len(remaining))
	}
	rec := remaining[0]
	if rec.ID != ids[1] || rec.Status != StatusPending || rec.Attempts != 1 || rec.LastError == "" {
		t.Errorf("remaining record: %+v", rec)
	}
}

func TestDrain_RetryLimitAbandons(t *testing.T) {
	offline, store := newSyncPair(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"still broken"}`))
	}), &OfflineOptions{RetryLimit: 2})

	ids := seedQueue(t, store, 1)

	first, err := offline.Drain(context.Background())
	if err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if first.Failed != 1 || first.Abandoned != 0 {
		t.Fatalf("first cycle: %+v", first)
	}

	second, err := offline.Drain(context.Background())
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if second.Failed != 1 || second.Abandoned != 1 {
		t.Fatalf("second cycle should abandon: %+v", second)
	}
	if len(second.Failures) != 1 || !second.Failures[0].Abandoned {
		t.Fatalf("failure detail: %+v", second.Failures)
	}

	listed, _ := store.ListQueuedRequests()
	if len(listed) != 1 || listed[0].ID != ids[0] || listed[0].Status != StatusAbandoned || listed[0].Attempts != 2 {
		t.Fatalf("abandoned record: %+v", listed[0])
	}

	// Abandoned records are skipped entirely in later cycles.
	third, err := offline.Drain(context.Background())
	if err != nil {
		t.Fatalf("third drain: %v", err)
	}
	if third.Synced != 0 || third.Failed != 0 {
		t.Fatalf("third cycle should skip abandoned record: %+v", third)
	}
}

func TestDrain_NegativeRetryLimitRetriesForever(t *testing.T) {
	offline, store := newSyncPair(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), &OfflineOptions{RetryLimit: -1})

	seedQueue(t, store, 1)

	for i := 0; i < 5; i++ {
		result, err := offline.Drain(context.Background())
		if err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
		if result.Abandoned != 0 {
			t.Fatalf("drain %d abandoned a record despite unlimited retries: %+v", i, result)
		}
	}
	listed, _ := store.ListQueuedRequests()
	if listed[0].Status != StatusPending || listed[0].Attempts != 5 {
		t.Fatalf("record after 5 cycles: %+v", listed[0])
	}
}

func TestDrain_OverlapRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	offline, store := newSyncPair(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		w.Write([]byte(`{"success":true}`))
	}), nil)

	seedQueue(t, store, 1)

	done := make(chan error, 1)
	go func() {
		_, err := offline.Drain(context.Background())
		done <- err
	}()

	<-entered
	if _, err := offline.Drain(context.Background()); err != ErrSyncInProgress {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first drain: %v", err)
	}

	// The drain flag resets; a later cycle runs normally.
	if _, err := offline.Drain(context.Background()); err != nil {
		t.Errorf("post-cycle drain: %v", err)
	}
}

func TestDrain_ContextCancelled(t *testing.T) {
	offline, store := newSyncPair(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}), nil)

	seedQueue(t, store, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := offline.Drain(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// Nothing was delivered; records stay queued for the next cycle.
	if offline.PendingCount() != 2 {
		t.Errorf("expected 2 pending after cancelled drain, got %d", offline.PendingCount())
	}
}

func TestSetOnline_TriggersDrain(t *testing.T) {
	offline, store := newSyncPair(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}), nil)

	forceOffline(offline)
	seedQueue(t, store, 2)

	offline.SetOnline(true)

	deadline := time.Now().Add(5 * time.Second)
	for offline.PendingCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("auto-drain did not empty the queue, pending=%d", offline.PendingCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDrain_NotifierGetsOneSummary(t *testing.T) {
	notifier := &recordingNotifier{}
	offline, store := newSyncPair(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FoodID int `json:"foodId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.FoodID == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}), &OfflineOptions{Notifier: notifier})

	seedQueue(t, store, 2)

	if _, err := offline.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	results := notifier.results()
	if len(results) != 1 {
		t.Fatalf("expected one aggregated summary, got %d", len(results))
	}
	if results[0].Synced != 1 || results[0].Failed != 1 {
		t.Errorf("summary: %+v", results[0])
	}
}

func TestDrain_EmptyQueueIsQuiet(t *testing.T) {
	notifier := &recordingNotifier{}
	offline, _ := newSyncPair(t, http.NotFoundHandler(), &OfflineOptions{Notifier: notifier})

	rec := &eventRecorder{}
	rec.attach(offline, EventSyncStart, EventSyncComplete)

	result, err := offline.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if result.Synced != 0 || result.Failed != 0 {
		t.Errorf("result: %+v", result)
	}

	// Reconnecting with nothing queued must not surface a summary.
	if got := notifier.results(); len(got) != 0 {
		t.Errorf("expected no notifier summary, got %d", len(got))
	}
	if rec.count(EventSyncStart) != 0 || rec.count(EventSyncComplete) != 0 {
		t.Errorf("expected no sync events for an empty cycle, events: %v", rec.events)
	}
}

func TestActionSummary(t *testing.T) {
	if got := actionSummary("Synced", 1); got != "Synced 1 action" {
		t.Errorf("singular: %q", got)
	}
	if got := actionSummary("Synced", 3); got != "Synced 3 actions" {
		t.Errorf("plural: %q", got)
	}
}

func TestChannelNotifier(t *testing.T) {
	notifier := NewChannelNotifier(4)

	notifier.OfflineChanged(true, 2)
	notifier.SyncCompleted(SyncResult{Synced: 2})

	select {
	case n := <-notifier.C():
		if n.Kind != NotificationOffline || n.Pending != 2 {
			t.Errorf("first notification: %+v", n)
		}
	default:
		t.Fatal("expected a buffered offline notification")
	}
	select {
	case n := <-notifier.C():
		if n.Kind != NotificationSync || n.Result == nil || n.Result.Synced != 2 {
			t.Errorf("second notification: %+v", n)
		}
	default:
		t.Fatal("expected a buffered sync notification")
	}

	// A full buffer drops rather than blocks.
	small := NewChannelNotifier(1)
	small.OfflineChanged(true, 1)
	small.OfflineChanged(false, 0)
	if len(small.C()) != 1 {
		t.Errorf("expected drop on full buffer, len=%d", len(small.C()))
	}
}
