// Command example instruments a fake client session against a local
// devsink. Run devsink first, then this, and watch reports arrive.
package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/probekit/probekit/pkg/event"
	"github.com/probekit/probekit/pkg/sdk"
)

func main() {
	server := flag.String("server", "http://localhost:8080/v1/reports/batch", "batch ingest endpoint")
	dataDir := flag.String("data", "", "durable queue directory (empty = memory only)")
	flag.Parse()

	cfg := sdk.DefaultConfig()
	cfg.ProjectID = "example-app"
	cfg.ServerURL = *server
	cfg.Env = "development"
	cfg.FlushInterval = 2 * time.Second
	if *dataDir != "" {
		cfg.StoragePath = filepath.Join(*dataDir, "probekit")
	}

	monitor, err := sdk.Init(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer monitor.Destroy()

	monitor.SetDeviceInfo(map[string]string{"model": "devbox", "os": "linux"})
	monitor.SetUser("user-demo")
	monitor.SetPage("pages/home")

	// A little session: some breadcrumbs, a slow request, a crash.
	monitor.TrackBehavior(event.BehaviorItem{Kind: event.BehaviorTap, Method: "openMenu"})
	monitor.SetPage("pages/search")
	monitor.TrackBehavior(event.BehaviorItem{Kind: event.BehaviorCustom, Method: "search", Args: []any{"blue shoes"}})

	monitor.CaptureHTTP(event.HTTPPayload{
		URL:        "https://api.example.com/v1/search",
		Method:     "GET",
		StatusCode: 200,
		Duration:   3200 * time.Millisecond,
	})

	monitor.CaptureError(event.ErrorPayload{
		Message:  "TypeError: cannot read results of undefined",
		Stack:    "at renderResults (search.js:88:13)",
		Filename: "search.js",
		Line:     88,
		Column:   13,
	})

	if err := monitor.Flush(context.Background()); err != nil {
		log.Printf("flush: %v", err)
	}
	log.Println("session delivered")
}
