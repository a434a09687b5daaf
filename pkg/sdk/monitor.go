package sdk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/probekit/probekit/pkg/event"
	"github.com/probekit/probekit/pkg/sdk/breadcrumb"
	"github.com/probekit/probekit/pkg/sdk/decorate"
	"github.com/probekit/probekit/pkg/sdk/queue"
	"github.com/probekit/probekit/pkg/sdk/reporter"
	"github.com/probekit/probekit/pkg/sdk/sampling"
	"github.com/probekit/probekit/pkg/sdk/transport"
	"github.com/probekit/probekit/pkg/storage"
	badgerstore "github.com/probekit/probekit/pkg/storage/badger"
	"github.com/probekit/probekit/pkg/storage/memory"
)

// Subscriber receives accepted events of one kind, synchronously,
// after the event has entered the queue. Subscriber panics are
// recovered and logged.
type Subscriber func(event.RawEvent)

// Monitor is the long-lived session object owning the whole capture
// pipeline: breadcrumb buffer, sampling filter, report queue,
// transports, and the reporter's timers. One Monitor per application;
// create with Init, release with Destroy.
type Monitor struct {
	cfg   Config
	log   *log.Logger
	store storage.Store

	buffer   *breadcrumb.Buffer
	filter   *sampling.Filter
	decor    *decorate.Decorator
	queue    *queue.Queue
	chain    *transport.Chain
	reporter *reporter.Reporter

	// Cached context, refreshed by the embedding application (not by
	// this core). Read at decoration time.
	ctxMu     sync.RWMutex
	device    map[string]string
	network   map[string]string
	perf      map[string]float64
	tags      map[string]string
	userID    string
	userAgent string
	pageURL   string

	subMu sync.RWMutex
	subs  map[event.Kind][]Subscriber

	destroyed atomic.Bool
}

// Init validates the configuration and builds a running Monitor.
// A missing ProjectID or ServerURL is fatal; every later runtime
// error is swallowed and logged instead of reaching the host.
func Init(cfg Config) (*Monitor, error) {
	patterns, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	cfg.normalize()

	m := &Monitor{
		cfg:  cfg,
		log:  cfg.Logger,
		tags: make(map[string]string),
		subs: make(map[event.Kind][]Subscriber),
	}

	m.store = cfg.Store
	if m.store == nil {
		if cfg.StoragePath != "" {
			s, err := badgerstore.New(badgerstore.Config{Path: cfg.StoragePath})
			if err != nil {
				// Durability degrades to best-effort; the pipeline
				// itself keeps working.
				m.log.Printf("durable store unavailable, falling back to memory: %v", err)
				m.store = memory.New()
			} else {
				m.store = s
			}
		} else {
			m.store = memory.New()
		}
	}

	m.buffer = breadcrumb.New(cfg.BehaviorQueueLimit, breadcrumb.Options{
		IncludeMethods: cfg.IncludeBehaviorMethods,
		ExcludeMethods: cfg.ExcludeBehaviorMethods,
	})
	m.filter = sampling.New(cfg.SampleRate, patterns)
	m.decor = decorate.New(cfg.Env, cfg.Scene, decorate.Providers{
		Device:      m.deviceSnapshot,
		Network:     m.networkSnapshot,
		Performance: m.perfSnapshot,
		Tags:        m.tagSnapshot,
		Behavior:    m.buffer.Snapshot,
		UserID:      func() string { return m.contextString(&m.userID) },
		UserAgent:   func() string { return m.contextString(&m.userAgent) },
		PageURL:     func() string { return m.contextString(&m.pageURL) },
	})

	m.queue = queue.New(queue.Config{
		Limit:          cfg.ReportQueueLimit,
		PersistLimit:   cfg.PersistLimit,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
		Store:          m.store,
		Logger:         m.log,
	})
	m.queue.LoadPersisted(context.Background())

	m.chain = transport.NewChain(transport.ChainConfig{
		Endpoint:       cfg.ServerURL,
		StreamEndpoint: cfg.StreamURL,
		APIKey:         cfg.APIKey,
		Logger:         m.log,
	})

	m.reporter = reporter.New(m.queue, m.chain, reporter.Config{
		ProjectID:     cfg.ProjectID,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Logger:        m.log,
	})
	m.reporter.Start(context.Background())

	return m, nil
}

// Destroy stops the flush timer, performs one teardown flush over the
// teardown-safe transport, and releases the store. Safe to call more
// than once; captures after Destroy are dropped.
func (m *Monitor) Destroy() {
	if !m.destroyed.CompareAndSwap(false, true) {
		return
	}
	m.reporter.Destroy()
	if err := m.chain.Close(); err != nil {
		m.log.Printf("closing transport: %v", err)
	}
	if err := m.store.Close(); err != nil {
		m.log.Printf("closing store: %v", err)
	}
}

// Flush runs one flush cycle immediately. This is the only capture
// path whose failure a caller can observe.
func (m *Monitor) Flush(ctx context.Context) error {
	if m.destroyed.Load() {
		return fmt.Errorf("monitor destroyed")
	}
	return m.reporter.FlushNow(ctx)
}

// TeardownFlush combines everything pending into a single payload and
// hands it to the teardown-safe transport without waiting for an
// outcome. Platform adapters call this from page-hide or app-hide
// hooks; Destroy also triggers it.
func (m *Monitor) TeardownFlush() {
	m.reporter.TeardownFlush()
}

// CaptureEvent is the producer entrypoint shared by every platform
// adapter. It never lets an internal error propagate into host code:
// failures are recovered and logged here.
func (m *Monitor) CaptureEvent(ev event.RawEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.Printf("capture recovered: %v", rec)
		}
	}()

	if m.destroyed.Load() {
		return
	}
	if !ev.Kind.Valid() {
		m.log.Printf("dropping event with unknown kind %q", ev.Kind)
		return
	}

	switch ev.Kind {
	case event.KindBehavior:
		if ev.Behavior == nil {
			return
		}
		// Behavior events feed the breadcrumb trail; the method lists
		// decide whether they are recorded at all, and recorded ones
		// also flow down the report pipeline.
		recorded := m.buffer.Push(event.BehaviorItem{
			Kind:   ev.Behavior.Kind,
			Method: ev.Behavior.Method,
			Args:   ev.Behavior.Args,
		})
		if !recorded {
			return
		}
	case event.KindHTTP:
		if ev.HTTP == nil {
			return
		}
		m.buffer.Push(event.BehaviorItem{
			Kind:     event.BehaviorHTTP,
			Method:   ev.HTTP.Method,
			Args:     []any{ev.HTTP.URL, ev.HTTP.StatusCode},
			Duration: ev.HTTP.Duration,
		})
		if !m.httpReportable(ev.HTTP) {
			return
		}
	}

	if !m.filter.ShouldEmit(ev) {
		return
	}

	report := m.decor.Decorate(ev)
	m.queue.Enqueue(report)
	m.reporter.Notify()
	m.publish(ev)
}

// httpReportable decides whether an HTTP observation is worth a full
// report: failures, server error statuses, and slow requests are;
// healthy fast requests stay breadcrumbs.
func (m *Monitor) httpReportable(p *event.HTTPPayload) bool {
	if p.Error != "" {
		return true
	}
	if p.StatusCode >= 400 {
		return true
	}
	return p.Duration >= m.cfg.SlowRequestThreshold
}

// CaptureError reports a runtime error.
func (m *Monitor) CaptureError(p event.ErrorPayload) {
	m.CaptureEvent(event.RawEvent{Kind: event.KindError, Error: &p})
}

// CaptureHTTP reports an observed network request.
func (m *Monitor) CaptureHTTP(p event.HTTPPayload) {
	m.CaptureEvent(event.RawEvent{Kind: event.KindHTTP, HTTP: &p})
}

// CapturePerformance reports a set of performance measurements.
func (m *Monitor) CapturePerformance(p event.PerformancePayload) {
	m.CaptureEvent(event.RawEvent{Kind: event.KindPerformance, Performance: &p})
}

// TrackBehavior records a breadcrumb without producing a report.
func (m *Monitor) TrackBehavior(item event.BehaviorItem) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.Printf("behavior track recovered: %v", rec)
		}
	}()
	if m.destroyed.Load() {
		return
	}
	m.buffer.Push(item)
}

// Subscribe registers a synchronous observer for accepted events of
// one kind.
func (m *Monitor) Subscribe(kind event.Kind, fn Subscriber) {
	if !kind.Valid() || fn == nil {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subs[kind] = append(m.subs[kind], fn)
}

func (m *Monitor) publish(ev event.RawEvent) {
	m.subMu.RLock()
	subs := m.subs[ev.Kind]
	m.subMu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.log.Printf("subscriber panic: %v", rec)
				}
			}()
			fn(ev)
		}()
	}
}

// QueueLen exposes the current report backlog size.
func (m *Monitor) QueueLen() int { return m.queue.Len() }

// SetDeviceInfo replaces the cached device snapshot. Refreshed
// periodically by the embedding application.
func (m *Monitor) SetDeviceInfo(info map[string]string) {
	m.ctxMu.Lock()
	m.device = cloneStringMap(info)
	m.ctxMu.Unlock()
}

// SetNetworkInfo replaces the cached network snapshot.
func (m *Monitor) SetNetworkInfo(info map[string]string) {
	m.ctxMu.Lock()
	m.network = cloneStringMap(info)
	m.ctxMu.Unlock()
}

// SetPerformanceSnapshot replaces the cached performance snapshot.
func (m *Monitor) SetPerformanceSnapshot(metrics map[string]float64) {
	m.ctxMu.Lock()
	if metrics == nil {
		m.perf = nil
	} else {
		cp := make(map[string]float64, len(metrics))
		for k, v := range metrics {
			cp[k] = v
		}
		m.perf = cp
	}
	m.ctxMu.Unlock()
}

// SetTag sets one custom tag carried by every subsequent report.
func (m *Monitor) SetTag(key, value string) {
	m.ctxMu.Lock()
	m.tags[key] = value
	m.ctxMu.Unlock()
}

// SetUser records the current user identity.
func (m *Monitor) SetUser(id string) {
	m.ctxMu.Lock()
	m.userID = id
	m.ctxMu.Unlock()
}

// SetUserAgent records the host user agent string.
func (m *Monitor) SetUserAgent(ua string) {
	m.ctxMu.Lock()
	m.userAgent = ua
	m.ctxMu.Unlock()
}

// SetPage records the active page, both for report context and for
// stamping subsequent breadcrumbs.
func (m *Monitor) SetPage(url string) {
	m.ctxMu.Lock()
	m.pageURL = url
	m.ctxMu.Unlock()
	m.buffer.SetActivePage(url)
}

func (m *Monitor) deviceSnapshot() map[string]string {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	return cloneStringMap(m.device)
}

func (m *Monitor) networkSnapshot() map[string]string {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	return cloneStringMap(m.network)
}

func (m *Monitor) perfSnapshot() map[string]float64 {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	if m.perf == nil {
		return nil
	}
	cp := make(map[string]float64, len(m.perf))
	for k, v := range m.perf {
		cp[k] = v
	}
	return cp
}

func (m *Monitor) tagSnapshot() map[string]string {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	if len(m.tags) == 0 {
		return nil
	}
	return cloneStringMap(m.tags)
}

func (m *Monitor) contextString(field *string) string {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	return *field
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
