package event

import "time"

// Kind identifies the class of a captured event. The set is closed:
// producers must not invent new kinds, and dispatch switches over
// these values exhaustively.
type Kind string

const (
	KindError       Kind = "error"
	KindHTTP        Kind = "http"
	KindPerformance Kind = "performance"
	KindBehavior    Kind = "behavior"
)

// Valid reports whether k is one of the recognized event kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindError, KindHTTP, KindPerformance, KindBehavior:
		return true
	}
	return false
}

// BehaviorKind categorizes a breadcrumb entry.
type BehaviorKind string

const (
	BehaviorFunction BehaviorKind = "function-call"
	BehaviorConsole  BehaviorKind = "console"
	BehaviorHTTP     BehaviorKind = "http"
	BehaviorCustom   BehaviorKind = "custom"
	BehaviorTap      BehaviorKind = "tap"
	BehaviorRoute    BehaviorKind = "route"
)

// ErrorPayload describes a captured runtime error.
type ErrorPayload struct {
	Message  string `json:"message"`
	Stack    string `json:"stack,omitempty"`
	Filename string `json:"filename,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// HTTPPayload describes an observed outbound network request.
type HTTPPayload struct {
	URL        string        `json:"url"`
	Method     string        `json:"method"`
	StatusCode int           `json:"statusCode"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// PerformancePayload carries a named set of performance measurements
// (e.g. page load timing, first paint, memory).
type PerformancePayload struct {
	Metric  string             `json:"metric"`
	Metrics map[string]float64 `json:"metrics"`
}

// BehaviorPayload describes a user or system action worth keeping as
// short-term context for later error reports.
type BehaviorPayload struct {
	Kind   BehaviorKind `json:"kind"`
	Method string       `json:"method"`
	Args   []any        `json:"args,omitempty"`
}

// RawEvent is the discriminated union produced by platform adapters.
// Exactly the payload matching Kind is set; the others are nil.
// RawEvents are immutable once created.
type RawEvent struct {
	Kind        Kind                `json:"kind"`
	Error       *ErrorPayload       `json:"error,omitempty"`
	HTTP        *HTTPPayload        `json:"http,omitempty"`
	Performance *PerformancePayload `json:"performance,omitempty"`
	Behavior    *BehaviorPayload    `json:"behavior,omitempty"`
}

// ErrorText returns the error message for error-class events, or ""
// for every other kind.
func (e RawEvent) ErrorText() string {
	switch e.Kind {
	case KindError:
		if e.Error != nil {
			return e.Error.Message
		}
	case KindHTTP:
		if e.HTTP != nil {
			return e.HTTP.Error
		}
	}
	return ""
}

// IsErrorClass reports whether the event is subject to error sampling.
// HTTP events count only when they carry an error.
func (e RawEvent) IsErrorClass() bool {
	switch e.Kind {
	case KindError:
		return true
	case KindHTTP:
		return e.HTTP != nil && e.HTTP.Error != ""
	}
	return false
}

// BehaviorItem is one breadcrumb. Items are owned by the ring buffer;
// readers only ever see snapshot copies.
type BehaviorItem struct {
	At         time.Time     `json:"at"`
	Kind       BehaviorKind  `json:"kind"`
	Method     string        `json:"method"`
	Args       []any         `json:"args,omitempty"`
	ActivePage string        `json:"activePage,omitempty"`
	BelongsTo  string        `json:"belongsTo,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// DecoratedReport is a RawEvent enriched with contextual snapshots,
// ready for queuing and delivery. Never mutated after creation.
type DecoratedReport struct {
	Payload     RawEvent           `json:"payload"`
	Behavior    []BehaviorItem     `json:"behavior,omitempty"`
	Env         string             `json:"env,omitempty"`
	Scene       string             `json:"scene,omitempty"`
	At          time.Time          `json:"at"`
	Device      map[string]string  `json:"device,omitempty"`
	Network     map[string]string  `json:"network,omitempty"`
	Performance map[string]float64 `json:"performance,omitempty"`
	Tags        map[string]string  `json:"tags,omitempty"`
	UserID      string             `json:"userId,omitempty"`
	UserAgent   string             `json:"userAgent,omitempty"`
	PageURL     string             `json:"pageUrl,omitempty"`
	Fingerprint uint64             `json:"fingerprint,omitempty"`
}
