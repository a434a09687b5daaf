// Package breadcrumb keeps a bounded FIFO log of recent user and
// system actions. Error reports carry a snapshot of the tail of this
// log as short-term context.
package breadcrumb

import (
	"sync"
	"time"

	"github.com/probekit/probekit/pkg/event"
)

// DefaultSnapshotSize is how many trailing items a snapshot returns
// when the caller asks for zero or fewer.
const DefaultSnapshotSize = 5

// Buffer is a bounded ring of behavior items. When a push would exceed
// the limit, exactly one oldest entry is evicted — strict FIFO, one
// eviction per push.
//
// Method inclusion/exclusion lists narrow what gets recorded: a
// non-empty inclusion list wins and only listed methods are kept;
// otherwise the exclusion list filters.
type Buffer struct {
	mu         sync.Mutex
	items      []event.BehaviorItem
	limit      int
	activePage string
	include    map[string]struct{}
	exclude    map[string]struct{}
	now        func() time.Time
}

// Options configures a Buffer beyond its size limit.
type Options struct {
	IncludeMethods []string
	ExcludeMethods []string
}

// New creates a buffer holding at most limit items.
func New(limit int, opts Options) *Buffer {
	if limit < 1 {
		limit = 1
	}
	b := &Buffer{
		items: make([]event.BehaviorItem, 0, limit),
		limit: limit,
		now:   time.Now,
	}
	if len(opts.IncludeMethods) > 0 {
		b.include = make(map[string]struct{}, len(opts.IncludeMethods))
		for _, m := range opts.IncludeMethods {
			b.include[m] = struct{}{}
		}
	}
	if len(opts.ExcludeMethods) > 0 {
		b.exclude = make(map[string]struct{}, len(opts.ExcludeMethods))
		for _, m := range opts.ExcludeMethods {
			b.exclude[m] = struct{}{}
		}
	}
	return b
}

// SetActivePage records the page reference stamped onto subsequent
// pushes. Route-change producers call this on navigation.
func (b *Buffer) SetActivePage(ref string) {
	b.mu.Lock()
	b.activePage = ref
	b.mu.Unlock()
}

// Push appends an item, stamping the current time and active page.
// Returns false when the item was filtered out by the method lists.
func (b *Buffer) Push(item event.BehaviorItem) bool {
	if !b.allows(item.Method) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	item.At = b.now()
	item.ActivePage = b.activePage

	b.items = append(b.items, item)
	if len(b.items) > b.limit {
		// One eviction per push keeps the loop trivially bounded.
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	return true
}

// allows applies the inclusion-wins precedence.
func (b *Buffer) allows(method string) bool {
	if b.include != nil {
		_, ok := b.include[method]
		return ok
	}
	if b.exclude != nil {
		if _, ok := b.exclude[method]; ok {
			return false
		}
	}
	return true
}

// Snapshot returns an independent copy of the last n items (oldest
// first). The copy is taken under the lock, so a report's trail can
// never be torn by a concurrent push.
func (b *Buffer) Snapshot(n int) []event.BehaviorItem {
	if n <= 0 {
		n = DefaultSnapshotSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.items) {
		n = len(b.items)
	}
	out := make([]event.BehaviorItem, n)
	copy(out, b.items[len(b.items)-n:])
	return out
}

// Len returns the current number of buffered items.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
