// Package queue holds pending report records until the reporter
// delivers them. The queue is bounded, status-tracked, and mirrored
// into a durable store after every mutation so that an abrupt process
// death loses as little as possible.
package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probekit/probekit/pkg/event"
	"github.com/probekit/probekit/pkg/storage"
)

// Status tracks an item through the delivery state machine. Every
// item starts pending and ends in exactly one terminal outcome:
// success (then removed by compaction) or failed (retained, never
// retried again).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRetryWait Status = "retry-wait"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// DefaultPersistLimit caps how many items each snapshot write carries,
// bounding storage growth no matter how large the queue gets.
const DefaultPersistLimit = 50

const saveTimeout = 2 * time.Second

// Item wraps a decorated report with delivery bookkeeping. ID and
// Data are immutable after creation; Status, RetryCount and ResumeAt
// are mutated only by the queue, under its lock.
type Item struct {
	ID         string                 `json:"id"`
	Data       *event.DecoratedReport `json:"data"`
	CreatedAt  time.Time              `json:"createdAt"`
	RetryCount int                    `json:"retryCount"`
	Status     Status                 `json:"status"`
	ResumeAt   time.Time              `json:"resumeAt,omitempty"`
}

// Config configures a Queue.
type Config struct {
	// Limit bounds the in-memory queue. At the limit, enqueue evicts
	// the single oldest item by insertion order, whatever its status:
	// under backpressure, new data beats old backlog.
	Limit int

	// PersistLimit caps the snapshot prefix written to the store.
	// Zero means DefaultPersistLimit.
	PersistLimit int

	// MaxRetries bounds delivery attempts per item.
	MaxRetries int

	// RetryBaseDelay is the unit of the linear backoff schedule:
	// an item waits RetryBaseDelay × retryCount before becoming
	// eligible again.
	RetryBaseDelay time.Duration

	// Store receives best-effort snapshots. Nil disables persistence.
	Store storage.Store

	// Logger receives swallowed persistence errors and drop notices.
	Logger *log.Logger

	// OnDrop, when set, is called with the number of items dropped by
	// overflow eviction or retry exhaustion.
	OnDrop func(count int)
}

// Queue is a bounded, durable, status-tracked report queue.
// Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []*Item
	cfg   Config
	log   *log.Logger
	now   func() time.Time
}

// New creates an empty queue.
func New(cfg Config) *Queue {
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	if cfg.PersistLimit <= 0 {
		cfg.PersistLimit = DefaultPersistLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Queue{
		items: make([]*Item, 0, cfg.Limit),
		cfg:   cfg,
		log:   logger,
		now:   time.Now,
	}
}

// Enqueue wraps the report as a pending item, evicting the oldest
// entry first when the queue is full, and writes a snapshot.
func (q *Queue) Enqueue(r *event.DecoratedReport) *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.cfg.Limit {
		evicted := q.items[0]
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.log.Printf("queue full (limit %d), dropped oldest item %s", q.cfg.Limit, evicted.ID)
		q.notifyDrop(1)
	}

	item := &Item{
		ID:        uuid.NewString(),
		Data:      r,
		CreatedAt: q.now(),
		Status:    StatusPending,
	}
	q.items = append(q.items, item)

	q.persistLocked()
	return item
}

// LoadPersisted repopulates the queue from the store. Called once at
// startup, before any enqueue. Malformed entries are discarded and a
// corrupt store degrades to an empty queue; it never fails.
func (q *Queue) LoadPersisted(ctx context.Context) {
	if q.cfg.Store == nil {
		return
	}

	data, err := q.cfg.Store.Load(ctx)
	if err != nil {
		q.log.Printf("failed to load persisted queue: %v", err)
		return
	}
	if len(data) == 0 {
		return
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		q.log.Printf("persisted queue is corrupt, starting empty: %v", err)
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	loaded := 0
	for _, entry := range raw {
		var item Item
		if err := json.Unmarshal(entry, &item); err != nil {
			q.log.Printf("discarding malformed persisted item: %v", err)
			continue
		}
		if item.ID == "" || item.Data == nil {
			continue
		}
		// Terminal items have no business being reloaded.
		if item.Status == StatusSuccess || item.Status == StatusFailed {
			continue
		}
		if len(q.items) >= q.cfg.Limit {
			break
		}
		q.items = append(q.items, &item)
		loaded++
	}

	if loaded > 0 {
		q.log.Printf("restored %d persisted report(s)", loaded)
	}
}

// Pending returns the items currently eligible for a flush attempt.
// Items in retry-wait whose window has elapsed are promoted back to
// pending first.
func (q *Queue) Pending() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []*Item
	for _, item := range q.items {
		if item.Status == StatusRetryWait && !now.Before(item.ResumeAt) {
			item.Status = StatusPending
			item.ResumeAt = time.Time{}
		}
		if item.Status == StatusPending {
			out = append(out, item)
		}
	}
	return out
}

// MarkOutcome records the result of a delivery attempt. Failure
// advances the retry count; at MaxRetries the item becomes failed
// (terminal). Otherwise it waits RetryBaseDelay × retryCount before
// turning pending again — linear backoff.
func (q *Queue) MarkOutcome(item *Item, success bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.Status == StatusSuccess || item.Status == StatusFailed {
		return
	}

	if success {
		item.Status = StatusSuccess
		item.ResumeAt = time.Time{}
	} else {
		if item.RetryCount < q.cfg.MaxRetries {
			item.RetryCount++
		}
		if item.RetryCount >= q.cfg.MaxRetries {
			item.Status = StatusFailed
			q.log.Printf("dropping report %s after %d failed attempts", item.ID, item.RetryCount)
			q.notifyDrop(1)
		} else {
			item.Status = StatusRetryWait
			item.ResumeAt = q.now().Add(q.cfg.RetryBaseDelay * time.Duration(item.RetryCount))
		}
	}

	q.persistLocked()
}

// Discard removes a single item outright, whatever its status. Used
// for records that can never be delivered (for example payloads that
// cannot be encoded); retrying those would fail forever.
func (q *Queue) Discard(item *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it == item {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			q.persistLocked()
			q.notifyDrop(1)
			return
		}
	}
}

// Compact removes delivered items. Idempotent: with no intervening
// mutation a second call is a no-op.
func (q *Queue) Compact() {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if item.Status == StatusSuccess {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept

	if removed > 0 {
		q.persistLocked()
	}
}

// Len returns the number of items currently held, any status.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queue contents, oldest first. Intended
// for inspection and tests.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, len(q.items))
	for i, item := range q.items {
		out[i] = *item
	}
	return out
}

// Persist writes a snapshot outside the usual mutation points. The
// reporter calls this after a flush cycle.
func (q *Queue) Persist() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.persistLocked()
}

// persistLocked writes a best-effort snapshot of the first
// PersistLimit undelivered items. Store failures are logged and leave
// in-memory state untouched. Caller holds q.mu.
func (q *Queue) persistLocked() {
	if q.cfg.Store == nil {
		return
	}

	snapshot := make([]*Item, 0, min(len(q.items), q.cfg.PersistLimit))
	for _, item := range q.items {
		if item.Status == StatusSuccess {
			continue
		}
		snapshot = append(snapshot, item)
		if len(snapshot) >= q.cfg.PersistLimit {
			break
		}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		q.log.Printf("failed to encode queue snapshot: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := q.cfg.Store.Save(ctx, data); err != nil {
		q.log.Printf("failed to persist queue snapshot: %v", err)
	}
}

func (q *Queue) notifyDrop(n int) {
	if q.cfg.OnDrop != nil {
		q.cfg.OnDrop(n)
	}
}
