package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"github.com/probekit/probekit/pkg/event"
)

var upgrader = websocket.Upgrader{
	// Local development tool: accept any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var (
	errorColor = color.New(color.FgRed, color.Bold)
	httpColor  = color.New(color.FgYellow)
	perfColor  = color.New(color.FgCyan)
	otherColor = color.New(color.FgWhite)
)

// sink counts and prints incoming reports.
type sink struct {
	mu       sync.Mutex
	received int
	quiet    bool
}

func newSink(quiet bool) *sink {
	return &sink{quiet: quiet}
}

func (s *sink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}

func (s *sink) handleReport(w http.ResponseWriter, r *http.Request) {
	var rep event.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid report: %v", err))
		return
	}
	s.accept([]event.Report{rep})
	writeJSON(w, http.StatusOK, map[string]int{"accepted": 1})
}

func (s *sink) handleBatch(w http.ResponseWriter, r *http.Request) {
	var batch []event.Report
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid batch: %v", err))
		return
	}
	s.accept(batch)
	writeJSON(w, http.StatusOK, map[string]int{"accepted": len(batch)})
}

// handleStream accepts the same batch frames the SDK's stream
// transport writes, one JSON array per message.
func (s *sink) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log.Printf("stream client connected from %s", r.RemoteAddr)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("stream client gone: %v", err)
			return
		}
		var batch []event.Report
		if err := json.Unmarshal(msg, &batch); err != nil {
			log.Printf("invalid stream frame: %v", err)
			continue
		}
		s.accept(batch)
	}
}

func (s *sink) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *sink) accept(batch []event.Report) {
	s.mu.Lock()
	s.received += len(batch)
	s.mu.Unlock()

	if s.quiet {
		return
	}
	for _, rep := range batch {
		printReport(rep)
	}
}

func printReport(rep event.Report) {
	switch rep.Type {
	case string(event.KindError):
		errorColor.Printf("ERROR  [%s] %s\n", rep.ProjectID, rep.ErrorMessage)
		if rep.ErrorStack != "" {
			fmt.Printf("       %s\n", rep.ErrorStack)
		}
	case string(event.KindHTTP):
		httpColor.Printf("HTTP   [%s] %s %s -> %d (%dms)\n",
			rep.ProjectID, rep.RequestMethod, rep.RequestURL, rep.ResponseStatus, rep.Duration)
		if rep.ErrorMessage != "" {
			fmt.Printf("       %s\n", rep.ErrorMessage)
		}
	case string(event.KindPerformance):
		perfColor.Printf("PERF   [%s] %s\n", rep.ProjectID, rep.PerformanceData)
	default:
		otherColor.Printf("%-6s [%s]\n", rep.Type, rep.ProjectID)
	}
	if rep.PageURL != "" {
		fmt.Printf("       page=%s user=%s\n", rep.PageURL, rep.UserID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
