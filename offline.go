// Offline layer: connectivity monitor, request interceptor, and event
// emitter.
//
// Mutating calls that fail while the host is offline are diverted into a
// QueueStore and answered with a synthetic success, so the UI can proceed
// optimistically. Read calls that fail are served from a freshness-bounded
// response cache. The sync engine in sync.go drains the queue once the host
// comes back online.
//
// Usage:
//
//	store, err := macrolog.OpenSQLiteStore(dbPath, nil)
//	if err != nil {
//		store = nil // degrade to online-only for this session
//	}
//	offline := macrolog.NewOfflineManager(store, client, nil)
//	client.AttachOffline(offline)
//
//	offline.SetOnline(false) // host lost connectivity
//	client.Meals.Log(ctx, opts) // queued, optimistic success
//	offline.SetOnline(true)  // edge triggers a drain cycle
package macrolog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ============================================================================
// Events
// ============================================================================

// Event names published by the offline manager.
const (
	EventOnline       = "network.online"
	EventOffline      = "network.offline"
	EventQueued       = "queue.added"
	EventCacheHit     = "cache.hit"
	EventSyncStart    = "sync.start"
	EventSyncSent     = "sync.sent"
	EventSyncFailed   = "sync.failed"
	EventSyncComplete = "sync.complete"
)

// OfflineEventHandler handles offline-layer events.
type OfflineEventHandler func(event string, payload any)

type offlineEmitter struct {
	mu        sync.RWMutex
	listeners map[string][]OfflineEventHandler
}

func (e *offlineEmitter) On(event string, handler OfflineEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *offlineEmitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}

func (e *offlineEmitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]OfflineEventHandler)
}

// ============================================================================
// Offline Manager
// ============================================================================

// OfflineOptions configures the OfflineManager.
type OfflineOptions struct {
	// RetryLimit is the number of replay attempts before a queued request is
	// abandoned. Zero applies DefaultRetryLimit; a negative value retries
	// forever.
	RetryLimit int
	// Notifier receives offline/sync status for the UI layer. Defaults to
	// NopNotifier.
	Notifier Notifier
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// DefaultRetryLimit is the replay attempt cap applied when OfflineOptions
// leaves RetryLimit unset.
const DefaultRetryLimit = 10

// OfflineManager wraps the client's request path with offline fallback. It
// owns the connectivity flag, the queue store, and the sync engine, and it is
// the only component that touches the store.
type OfflineManager struct {
	offlineEmitter
	store    QueueStore
	client   *Client
	notifier Notifier
	log      *zap.Logger

	retryLimit int
	readGroup  singleflight.Group

	mu       sync.Mutex
	online   bool
	draining bool
}

// NewOfflineManager creates an offline manager around the given store and
// client. Pass store == nil to run in degraded, online-only mode (no queuing,
// no cache); this is the expected fallback when durable storage failed to
// open. The manager starts in the online state.
func NewOfflineManager(store QueueStore, client *Client, opts *OfflineOptions) *OfflineManager {
	o := &OfflineManager{
		offlineEmitter: offlineEmitter{listeners: make(map[string][]OfflineEventHandler)},
		store:          store,
		client:         client,
		notifier:       NopNotifier{},
		log:            zap.NewNop(),
		online:         true,
	}
	if opts != nil {
		o.retryLimit = opts.RetryLimit
		if opts.Notifier != nil {
			o.notifier = opts.Notifier
		}
		if opts.Logger != nil {
			o.log = opts.Logger
		}
	}
	if o.retryLimit == 0 {
		o.retryLimit = DefaultRetryLimit
	}
	if store == nil {
		o.log.Warn("offline store unavailable, running online-only this session")
	}
	return o
}

// Close releases listeners and the underlying store.
func (o *OfflineManager) Close() error {
	o.removeAll()
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// ============================================================================
// Connectivity monitor
// ============================================================================

// IsOnline reports the host's current connectivity flag. The flag is
// advisory: true does not guarantee the API is reachable.
func (o *OfflineManager) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// SetOnline updates the connectivity flag. Edges are fired at most once per
// actual transition: going online triggers a drain cycle, going offline
// raises the offline notification.
func (o *OfflineManager) SetOnline(online bool) {
	o.mu.Lock()
	if o.online == online {
		o.mu.Unlock()
		return
	}
	o.online = online
	o.mu.Unlock()

	if online {
		o.emit(EventOnline, nil)
		o.notifyOffline(false)
		go o.Drain(context.Background())
	} else {
		o.emit(EventOffline, nil)
		o.notifyOffline(true)
	}
}

// PendingCount returns the number of queued requests awaiting replay.
func (o *OfflineManager) PendingCount() int {
	if o.store == nil {
		return 0
	}
	count, err := o.store.PendingCount()
	if err != nil {
		o.log.Warn("pending count unavailable", zap.Error(err))
		return 0
	}
	return count
}

// ListQueued returns the current queue contents, oldest first.
func (o *OfflineManager) ListQueued() ([]*QueuedRequest, error) {
	if o.store == nil {
		return nil, nil
	}
	return o.store.ListQueuedRequests()
}

// ClearQueued discards all queued requests without delivering them.
func (o *OfflineManager) ClearQueued() error {
	if o.store == nil {
		return nil
	}
	return o.store.ClearQueuedRequests()
}

func (o *OfflineManager) notifyOffline(offline bool) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Warn("notifier panicked", zap.Any("panic", r))
		}
	}()
	o.notifier.OfflineChanged(offline, o.PendingCount())
}

// ============================================================================
// Request interceptor
// ============================================================================

func isMutating(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// Do sends a request through the offline layer. It exposes the same call
// shape as a plain HTTP call; callers cannot tell live, cached, and queued
// responses apart except for the {"offline":true} marker on a queued write.
func (o *OfflineManager) Do(ctx context.Context, method, path string, body any, query map[string]string) (json.RawMessage, error) {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		raw = b
	}
	return o.dispatch(ctx, method, path, raw, query)
}

// dispatch is the shared entry point for Do and for client sub-calls routed
// through AttachOffline.
func (o *OfflineManager) dispatch(ctx context.Context, method, path string, raw []byte, query map[string]string) (json.RawMessage, error) {
	address := joinAddress(path, query)
	if !isMutating(method) {
		return o.dispatchRead(ctx, method, address, raw)
	}
	return o.dispatchWrite(ctx, method, address, raw)
}

// dispatchRead tries the network, caches successes, and falls back to a
// fresh-enough cached body on failure. Identical concurrent reads collapse
// into a single network call.
func (o *OfflineManager) dispatchRead(ctx context.Context, method, address string, raw []byte) (json.RawMessage, error) {
	v, err, _ := o.readGroup.Do(address, func() (any, error) {
		headers := o.client.captureHeaders(raw != nil)
		data, err := o.client.send(ctx, method, address, headers, raw)
		if err == nil {
			if o.store != nil {
				if cerr := o.store.PutCachedResponse(address, data); cerr != nil {
					o.log.Warn("response cache write failed", zap.String("address", address), zap.Error(cerr))
				}
			}
			return json.RawMessage(data), nil
		}
		if o.store != nil {
			if cached, cerr := o.store.GetCachedResponse(address); cerr == nil {
				o.emit(EventCacheHit, address)
				return cached, nil
			}
		}
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// dispatchWrite sends a mutating call. On failure the connectivity flag at
// that moment decides the outcome: offline means queue-and-succeed, online
// means a genuine server error that must propagate unmasked.
func (o *OfflineManager) dispatchWrite(ctx context.Context, method, address string, raw []byte) (json.RawMessage, error) {
	headers := o.client.captureHeaders(raw != nil)
	data, err := o.client.send(ctx, method, address, headers, raw)
	if err == nil {
		return data, nil
	}
	if o.IsOnline() {
		return nil, err
	}
	if o.store == nil {
		return nil, err
	}

	req := &QueuedRequest{
		ID:        newRequestID(),
		URL:       address,
		Method:    method,
		Headers:   headers,
		Body:      raw,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if qerr := o.store.AddQueuedRequest(req); qerr != nil {
		// No persistence this session; surface the original failure.
		o.log.Warn("failed to queue offline request", zap.String("url", address), zap.Error(qerr))
		return nil, err
	}

	o.log.Info("queued offline request",
		zap.String("id", req.ID), zap.String("method", method), zap.String("url", address))
	o.emit(EventQueued, req)

	synthetic, _ := json.Marshal(map[string]any{
		"success":  true,
		"offline":  true,
		"queuedId": req.ID,
	})
	return synthetic, nil
}
