package macrolog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrNotFound is returned when a cached response is absent or stale.
	ErrNotFound = errors.New("macrolog: not found")
	// ErrOffline is returned by Drain when the connectivity monitor reports
	// the host offline.
	ErrOffline = errors.New("macrolog: cannot sync while offline")
	// ErrSyncInProgress is returned by Drain when another drain cycle is
	// already running.
	ErrSyncInProgress = errors.New("macrolog: sync already in progress")
	// ErrStoreClosed is returned by store operations after Close.
	ErrStoreClosed = errors.New("macrolog: store is closed")
)

// ============================================================================
// Records
// ============================================================================

// Queued request lifecycle states.
const (
	StatusPending   = "pending"
	StatusAbandoned = "abandoned"
)

// DefaultFreshnessWindow is the maximum age at which a cached read response
// may be served in place of a failed live read.
const DefaultFreshnessWindow = time.Hour

// QueuedRequest is a persisted, not-yet-delivered mutating API call awaiting
// replay. Once stored, only the sync bookkeeping fields (Attempts, Status,
// LastError) change; the request itself is immutable. A record is removed
// only after a confirmed replay success or an explicit clear.
type QueuedRequest struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      json.RawMessage   `json:"body,omitempty"`
	Attempts  int               `json:"attempts"`
	Status    string            `json:"status"`
	LastError string            `json:"lastError,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// CachedResponse is the last-known-good body of a read call, keyed by its
// address (path plus query).
type CachedResponse struct {
	Address  string          `json:"address"`
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"storedAt"`
}

// newRequestID generates a queue record ID: millisecond timestamp plus a
// random suffix, so IDs sort in enqueue order and never collide.
func newRequestID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// ============================================================================
// QueueStore
// ============================================================================

// QueueStore is durable keyed storage for pending mutating requests and
// cached read responses. The offline manager is the only writer; backends
// only need per-record atomicity, no cross-record transactions.
type QueueStore interface {
	// AddQueuedRequest stores the record keyed by its ID.
	AddQueuedRequest(req *QueuedRequest) error
	// ListQueuedRequests returns all records in insertion order.
	ListQueuedRequests() ([]*QueuedRequest, error)
	// RecordFailure increments the record's attempt count and stores the
	// failure message. When abandon is true the record transitions to
	// StatusAbandoned and is skipped by future drain cycles.
	RecordFailure(id, message string, abandon bool) error
	// RemoveQueuedRequest deletes the record; removing a missing ID is a
	// silent no-op.
	RemoveQueuedRequest(id string) error
	// ClearQueuedRequests deletes all records. Explicit user action only.
	ClearQueuedRequests() error
	// PendingCount returns the number of records in StatusPending.
	PendingCount() (int, error)
	// PutCachedResponse upserts the cached body for an address.
	PutCachedResponse(address string, data json.RawMessage) error
	// GetCachedResponse returns the cached body if it is younger than the
	// freshness window, otherwise ErrNotFound. Stale entries may be evicted
	// lazily.
	GetCachedResponse(address string) (json.RawMessage, error)
	Close() error
}

// StoreOptions configures a queue store.
type StoreOptions struct {
	// FreshnessWindow overrides DefaultFreshnessWindow.
	FreshnessWindow time.Duration
}

// ============================================================================
// MemoryStore
// ============================================================================

// MemoryStore is a goroutine-safe in-memory QueueStore. It does not survive
// process restarts; it is the degraded fallback when durable storage is
// unavailable, and the backend of choice in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	requests  map[string]*QueuedRequest
	order     []string
	responses map[string]*CachedResponse
	window    time.Duration
	closed    bool
	now       func() time.Time
}

// NewMemoryStore creates an in-memory queue store.
func NewMemoryStore(opts *StoreOptions) *MemoryStore {
	window := DefaultFreshnessWindow
	if opts != nil && opts.FreshnessWindow > 0 {
		window = opts.FreshnessWindow
	}
	return &MemoryStore{
		requests:  make(map[string]*QueuedRequest),
		responses: make(map[string]*CachedResponse),
		window:    window,
		now:       time.Now,
	}
}

func (s *MemoryStore) AddQueuedRequest(req *QueuedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.requests[req.ID]; !exists {
		s.order = append(s.order, req.ID)
	}
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryStore) ListQueuedRequests() ([]*QueuedRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	result := make([]*QueuedRequest, 0, len(s.order))
	for _, id := range s.order {
		if req, ok := s.requests[id]; ok {
			cp := *req
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) RecordFailure(id, message string, abandon bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	req, ok := s.requests[id]
	if !ok {
		return nil
	}
	req.Attempts++
	req.LastError = message
	if abandon {
		req.Status = StatusAbandoned
	}
	return nil
}

func (s *MemoryStore) RemoveQueuedRequest(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.requests[id]; !ok {
		return nil
	}
	delete(s.requests, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ClearQueuedRequests() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.requests = make(map[string]*QueuedRequest)
	s.order = nil
	return nil
}

func (s *MemoryStore) PendingCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	count := 0
	for _, req := range s.requests {
		if req.Status == StatusPending {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) PutCachedResponse(address string, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.responses[address] = &CachedResponse{
		Address:  address,
		Data:     data,
		StoredAt: s.now(),
	}
	return nil
}

func (s *MemoryStore) GetCachedResponse(address string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	entry, ok := s.responses[address]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().Sub(entry.StoredAt) >= s.window {
		delete(s.responses, address)
		return nil, ErrNotFound
	}
	return entry.Data, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
