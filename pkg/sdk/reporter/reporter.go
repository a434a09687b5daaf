// Package reporter owns all scheduling in the pipeline: the periodic
// flush loop, retry bookkeeping, compaction, and the emergency flush
// on host teardown. Nothing else starts goroutines or timers.
package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/probekit/probekit/pkg/event"
	"github.com/probekit/probekit/pkg/sdk/queue"
)

// Sender delivers one encoded batch. Satisfied by *transport.Chain.
type Sender interface {
	Send(ctx context.Context, body []byte, teardown bool) error
}

// ErrFlushInProgress is returned by FlushNow when a flush cycle is
// already running.
var ErrFlushInProgress = errors.New("flush already in progress")

const sendTimeout = 15 * time.Second

// Config configures a Reporter.
type Config struct {
	// ProjectID stamps every wire record.
	ProjectID string

	// BatchSize bounds how many items one flush cycle takes, and is
	// the threshold for an eager flush between ticks.
	BatchSize int

	// FlushInterval is the timer period.
	FlushInterval time.Duration

	// Logger receives swallowed errors. Nil means log.Default().
	Logger *log.Logger
}

// Reporter drives the per-item state machine
// pending → success | retry-wait → pending → … → failed
// from a single timer loop with a single-flight guard.
type Reporter struct {
	cfg    Config
	queue  *queue.Queue
	sender Sender
	log    *log.Logger

	// flushing prevents overlapping flush cycles. A tick or eager
	// kick that loses the CompareAndSwap simply skips its turn; the
	// running cycle will pick the items up.
	flushing atomic.Bool

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	destroyOnce sync.Once
}

// New creates a reporter over the given queue and sender.
func New(q *queue.Queue, sender Sender, cfg Config) *Reporter {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Reporter{
		cfg:    cfg,
		queue:  q,
		sender: sender,
		log:    logger,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start begins the flush loop.
func (r *Reporter) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	go r.flushLoop()
}

// Notify tells the reporter new work arrived. When the pending count
// has reached BatchSize an eager flush is scheduled, bounding
// staleness under burst load.
func (r *Reporter) Notify() {
	if len(r.queue.Pending()) < r.cfg.BatchSize {
		return
	}
	select {
	case r.kick <- struct{}{}:
	default:
		// A kick is already queued; one flush will drain the batch.
	}
}

// FlushNow runs one flush cycle synchronously. It is the only
// operation whose failure is visible to the caller.
func (r *Reporter) FlushNow(ctx context.Context) error {
	if !r.flushing.CompareAndSwap(false, true) {
		return ErrFlushInProgress
	}
	defer r.flushing.Store(false)

	return r.flush(ctx)
}

// Destroy stops the timer and performs one teardown flush. Safe to
// call more than once.
func (r *Reporter) Destroy() {
	r.destroyOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
		r.TeardownFlush()
	})
}

// flushLoop drives periodic and eager flushes until cancelled.
func (r *Reporter) flushLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}

		if r.flushing.CompareAndSwap(false, true) {
			if err := r.flush(r.ctx); err != nil {
				r.log.Printf("flush cycle: %v", err)
			}
			r.flushing.Store(false)
		}
	}
}

// flush sends up to BatchSize pending items concurrently, records
// every outcome, then compacts. Item order within the batch is not
// preserved on the wire; each record carries its own capture
// timestamp instead.
func (r *Reporter) flush(ctx context.Context) error {
	pending := r.queue.Pending()
	if len(pending) == 0 {
		return nil
	}
	if len(pending) > r.cfg.BatchSize {
		pending = pending[:r.cfg.BatchSize]
	}

	var wg sync.WaitGroup
	errs := make([]error, len(pending))

	for i, item := range pending {
		body, err := r.encode(item.Data)
		if err != nil {
			// Encoding is deterministic; a retry would fail the same
			// way. Drop this one record and move on.
			r.log.Printf("dropping unencodable report %s: %v", item.ID, err)
			r.queue.Discard(item)
			continue
		}

		wg.Add(1)
		go func(i int, item *queue.Item, body []byte) {
			defer wg.Done()
			errs[i] = r.send(ctx, body)
			r.queue.MarkOutcome(item, errs[i] == nil)
		}(i, item, body)
	}

	wg.Wait()
	r.queue.Compact()

	return errors.Join(errs...)
}

// send performs one delivery attempt. A panic inside the transport is
// treated exactly like a failed send.
func (r *Reporter) send(ctx context.Context, body []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transport panic: %v", rec)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return r.sender.Send(sendCtx, body, false)
}

// TeardownFlush combines everything pending into one payload and
// hands it to the teardown-safe mechanism. No outcome is recorded:
// the process may not live long enough to observe one.
func (r *Reporter) TeardownFlush() {
	pending := r.queue.Pending()
	if len(pending) == 0 {
		return
	}

	batch := make([]event.Report, 0, len(pending))
	for _, item := range pending {
		rep, err := event.BuildReport(r.cfg.ProjectID, item.Data)
		if err != nil {
			r.log.Printf("skipping unencodable report %s in teardown flush: %v", item.ID, err)
			continue
		}
		batch = append(batch, rep)
	}
	if len(batch) == 0 {
		return
	}

	body, err := json.Marshal(batch)
	if err != nil {
		r.log.Printf("failed to encode teardown batch: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := r.sender.Send(ctx, body, true); err != nil {
		r.log.Printf("teardown flush not accepted: %v", err)
	}
}

// encode builds the single-record wire batch for one report.
func (r *Reporter) encode(data *event.DecoratedReport) ([]byte, error) {
	rep, err := event.BuildReport(r.cfg.ProjectID, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]event.Report{rep})
}
