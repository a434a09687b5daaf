/*
Package sdk provides the probekit client core: capture, sampling, and
durable reporting of errors, performance signals, and behavior
breadcrumbs.

# Quick Start

	cfg := sdk.DefaultConfig()
	cfg.ProjectID = "my-app"
	cfg.ServerURL = "http://localhost:8080/v1/reports/batch"
	cfg.StoragePath = filepath.Join(cacheDir, "probekit")

	monitor, err := sdk.Init(cfg)
	if err != nil {
	    log.Fatal(err)
	}
	defer monitor.Destroy()

	monitor.CaptureError(event.ErrorPayload{
	    Message: "checkout failed",
	    Stack:   stack,
	})

Platform adapters translate native hooks (global error handlers,
console patches, network call sites, page lifecycle) into CaptureEvent
calls; the core carries no platform dependency.

# Pipeline

Captured events flow through a fixed pipeline:

	CaptureEvent → sampling filter (errors only) → decoration →
	bounded durable queue → periodic batched delivery with linear
	retry backoff

Delivery never blocks capture. The queue is bounded: under sustained
backpressure the oldest backlog is dropped in favor of new data, and
items that exhaust their retries are dropped too. Both are logged and
surfaced through the queue's drop callback. These are deliberate
trade-offs: the host application's health always wins over delivery
guarantees.

# Teardown

When the host is about to die (page unload, app hide), call
TeardownFlush or Destroy. Everything pending is combined into one
payload and handed to the fire-and-forget transport, which reports
success as soon as the bytes are written; there may be nobody left to
read a response.

# Durability

With StoragePath set, the pending queue is mirrored into an embedded
BadgerDB store after every mutation, capped to a fixed prefix so
storage cannot grow without bound. On the next Init the persisted
backlog is restored and delivered. Store failures degrade durability
to best-effort; they never affect capture.
*/
package sdk
