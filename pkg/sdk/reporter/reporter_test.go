package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/probekit/probekit/pkg/event"
	"github.com/probekit/probekit/pkg/sdk/queue"
)

// mockSender records every batch it is handed.
type mockSender struct {
	mu        sync.Mutex
	batches   [][]byte
	teardowns [][]byte
	sendErr   error
	panicMsg  string
	delay     time.Duration
}

func (m *mockSender) Send(ctx context.Context, body []byte, teardown bool) error {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bodyCopy := append([]byte(nil), body...)
	if teardown {
		m.teardowns = append(m.teardowns, bodyCopy)
	} else {
		m.batches = append(m.batches, bodyCopy)
	}
	return m.sendErr
}

func (m *mockSender) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *mockSender) teardownCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.teardowns)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newQueue(limit, maxRetries int) *queue.Queue {
	return queue.New(queue.Config{
		Limit:          limit,
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Nanosecond,
		Logger:         testLogger(),
	})
}

func report(msg string) *event.DecoratedReport {
	return &event.DecoratedReport{
		Payload: event.RawEvent{Kind: event.KindError, Error: &event.ErrorPayload{Message: msg}},
		At:      time.Now(),
	}
}

// Scenario: one captured error, one successful flush, empty queue.
func TestFlushDeliversAndCompacts(t *testing.T) {
	q := newQueue(10, 3)
	sender := &mockSender{}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 10, FlushInterval: time.Hour, Logger: testLogger()})

	q.Enqueue(report("boom"))
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	if err := r.FlushNow(context.Background()); err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}

	if q.Len() != 0 {
		t.Errorf("Len() after successful flush = %d, want 0", q.Len())
	}
	if sender.batchCount() != 1 {
		t.Errorf("sender saw %d batches, want 1", sender.batchCount())
	}

	var batch []event.Report
	if err := json.Unmarshal(sender.batches[0], &batch); err != nil {
		t.Fatalf("batch is not valid JSON: %v", err)
	}
	if len(batch) != 1 || batch[0].ProjectID != "p1" || batch[0].ErrorMessage != "boom" {
		t.Errorf("batch = %+v", batch)
	}
}

func TestFlushRespectsBatchSize(t *testing.T) {
	q := newQueue(100, 3)
	sender := &mockSender{}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 3, FlushInterval: time.Hour, Logger: testLogger()})

	for i := 0; i < 5; i++ {
		q.Enqueue(report(fmt.Sprintf("err-%d", i)))
	}

	if err := r.FlushNow(context.Background()); err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}

	if sender.batchCount() != 3 {
		t.Errorf("first cycle sent %d items, want 3", sender.batchCount())
	}
	if q.Len() != 2 {
		t.Errorf("Len() after first cycle = %d, want 2", q.Len())
	}
}

// Scenario: transport fails on every attempt; the item must end
// failed and stay out of Pending forever.
func TestPersistentFailureExhaustsRetries(t *testing.T) {
	q := newQueue(10, 3)
	sender := &mockSender{sendErr: errors.New("backend down")}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 10, FlushInterval: time.Hour, Logger: testLogger()})

	q.Enqueue(report("boom"))

	for i := 0; i < 5; i++ {
		err := r.FlushNow(context.Background())
		if i < 3 && err == nil {
			t.Fatalf("flush %d succeeded against a failing transport", i)
		}
		time.Sleep(time.Millisecond) // backoff window is nanoseconds
	}

	items := q.Items()
	if len(items) != 1 || items[0].Status != queue.StatusFailed {
		t.Fatalf("items = %+v, want one failed item", items)
	}
	if got := len(q.Pending()); got != 0 {
		t.Errorf("Pending() length = %d after exhaustion, want 0", got)
	}
	if sender.batchCount() != 3 {
		t.Errorf("sender saw %d attempts, want exactly MaxRetries (3)", sender.batchCount())
	}
}

// Scenario: teardown with two pending items sends exactly one
// combined payload via the teardown-safe mechanism.
func TestTeardownFlushCombinesPending(t *testing.T) {
	q := newQueue(10, 3)
	sender := &mockSender{}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 10, FlushInterval: time.Hour, Logger: testLogger()})

	q.Enqueue(report("first"))
	q.Enqueue(report("second"))

	r.TeardownFlush()

	if sender.teardownCount() != 1 {
		t.Fatalf("teardown sends = %d, want exactly 1", sender.teardownCount())
	}
	if sender.batchCount() != 0 {
		t.Errorf("ordinary sends during teardown = %d, want 0", sender.batchCount())
	}

	var batch []event.Report
	if err := json.Unmarshal(sender.teardowns[0], &batch); err != nil {
		t.Fatalf("teardown payload is not valid JSON: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("combined payload holds %d records, want 2", len(batch))
	}
	msgs := map[string]bool{batch[0].ErrorMessage: true, batch[1].ErrorMessage: true}
	if !msgs["first"] || !msgs["second"] {
		t.Errorf("combined payload = %+v", batch)
	}
}

func TestTeardownFlushRecordsNoOutcome(t *testing.T) {
	q := newQueue(10, 3)
	sender := &mockSender{sendErr: errors.New("gone")}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 10, FlushInterval: time.Hour, Logger: testLogger()})

	item := q.Enqueue(report("boom"))
	r.TeardownFlush()

	if item.RetryCount != 0 || item.Status != queue.StatusPending {
		t.Errorf("teardown flush mutated item bookkeeping: %+v", item)
	}
}

func TestSenderPanicIsFailureOutcome(t *testing.T) {
	q := newQueue(10, 3)
	sender := &mockSender{panicMsg: "connection pool corrupted"}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 10, FlushInterval: time.Hour, Logger: testLogger()})

	item := q.Enqueue(report("boom"))

	if err := r.FlushNow(context.Background()); err == nil {
		t.Fatal("FlushNow() swallowed a transport panic")
	}
	if item.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1 (panic counts as a failed attempt)", item.RetryCount)
	}
}

func TestUnencodableRecordDiscardedOthersDelivered(t *testing.T) {
	q := newQueue(10, 3)
	sender := &mockSender{}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 10, FlushInterval: time.Hour, Logger: testLogger()})

	bad := &event.DecoratedReport{
		Payload: event.RawEvent{
			Kind:     event.KindBehavior,
			Behavior: &event.BehaviorPayload{Kind: event.BehaviorConsole, Method: "log", Args: []any{make(chan int)}},
		},
		At: time.Now(),
	}
	q.Enqueue(bad)
	q.Enqueue(report("good"))

	if err := r.FlushNow(context.Background()); err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (bad record dropped, good delivered)", q.Len())
	}
	if sender.batchCount() != 1 {
		t.Errorf("sender saw %d batches, want 1", sender.batchCount())
	}
}

func TestFlushNowSingleFlight(t *testing.T) {
	q := newQueue(10, 3)
	sender := &mockSender{delay: 200 * time.Millisecond}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 10, FlushInterval: time.Hour, Logger: testLogger()})

	q.Enqueue(report("boom"))

	started := make(chan struct{})
	go func() {
		close(started)
		r.FlushNow(context.Background())
	}()

	<-started
	time.Sleep(50 * time.Millisecond)
	if err := r.FlushNow(context.Background()); !errors.Is(err, ErrFlushInProgress) {
		t.Errorf("concurrent FlushNow() error = %v, want ErrFlushInProgress", err)
	}
}

func TestEagerFlushAtBatchSize(t *testing.T) {
	q := newQueue(100, 3)
	sender := &mockSender{}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 2, FlushInterval: time.Hour, Logger: testLogger()})

	r.Start(context.Background())
	defer r.Destroy()

	// Below threshold: nothing should happen before the (distant) tick.
	q.Enqueue(report("one"))
	r.Notify()
	time.Sleep(50 * time.Millisecond)
	if sender.batchCount() != 0 {
		t.Fatalf("flush ran below the batch threshold")
	}

	// Reaching the threshold must trigger a flush without a tick.
	q.Enqueue(report("two"))
	r.Notify()

	deadline := time.Now().Add(2 * time.Second)
	for sender.batchCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sender.batchCount() != 2 {
		t.Errorf("eager flush delivered %d items, want 2", sender.batchCount())
	}
}

func TestPeriodicFlush(t *testing.T) {
	q := newQueue(100, 3)
	sender := &mockSender{}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 50, FlushInterval: 30 * time.Millisecond, Logger: testLogger()})

	r.Start(context.Background())
	defer r.Destroy()

	q.Enqueue(report("boom"))

	deadline := time.Now().Add(2 * time.Second)
	for sender.batchCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sender.batchCount() == 0 {
		t.Error("timer-driven flush never ran")
	}
}

func TestDestroyPerformsTeardownFlush(t *testing.T) {
	q := newQueue(10, 3)
	sender := &mockSender{}
	r := New(q, sender, Config{ProjectID: "p1", BatchSize: 50, FlushInterval: time.Hour, Logger: testLogger()})

	r.Start(context.Background())
	q.Enqueue(report("boom"))

	r.Destroy()
	if sender.teardownCount() != 1 {
		t.Errorf("Destroy() produced %d teardown sends, want 1", sender.teardownCount())
	}

	// Idempotent.
	r.Destroy()
	if sender.teardownCount() != 1 {
		t.Errorf("second Destroy() re-sent: %d", sender.teardownCount())
	}
}
