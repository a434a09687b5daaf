// Package decorate enriches raw captured events with contextual
// snapshots into canonical report records. It performs no I/O and
// never fails into the caller: malformed input degrades to a minimal
// record.
package decorate

import (
	"time"

	"github.com/probekit/probekit/pkg/event"
)

// Providers supplies the contextual snapshots pulled at decoration
// time. Every field is optional; a nil provider simply leaves the
// corresponding report field absent. Providers must return copies the
// decorator may retain.
type Providers struct {
	Device      func() map[string]string
	Network     func() map[string]string
	Performance func() map[string]float64
	Tags        func() map[string]string
	Behavior    func(n int) []event.BehaviorItem
	UserID      func() string
	UserAgent   func() string
	PageURL     func() string
}

// Decorator builds DecoratedReports from raw events.
type Decorator struct {
	env       string
	scene     string
	providers Providers
	now       func() time.Time
}

// New creates a decorator for the given environment/scene flags.
func New(env, scene string, providers Providers) *Decorator {
	return &Decorator{
		env:       env,
		scene:     scene,
		providers: providers,
		now:       time.Now,
	}
}

// Decorate produces the canonical report record for a raw event.
// A RawEvent whose payload is missing for its kind yields a minimal
// report carrying only the recoverable text; Decorate never returns
// an error or panics.
func (d *Decorator) Decorate(raw event.RawEvent) *event.DecoratedReport {
	r := &event.DecoratedReport{
		Payload: raw,
		Env:     d.env,
		Scene:   d.scene,
		At:      d.now(),
	}

	if !wellFormed(raw) {
		// Keep what we can: the kind and any error text. The rest of
		// the context is omitted on purpose so a corrupt producer
		// cannot poison device or user fields.
		r.Payload = minimalPayload(raw)
		return r
	}

	p := d.providers
	if p.Device != nil {
		r.Device = p.Device()
	}
	if p.Network != nil {
		r.Network = p.Network()
	}
	if p.Performance != nil {
		r.Performance = p.Performance()
	}
	if p.Tags != nil {
		r.Tags = p.Tags()
	}
	if p.UserID != nil {
		r.UserID = p.UserID()
	}
	if p.UserAgent != nil {
		r.UserAgent = p.UserAgent()
	}
	if p.PageURL != nil {
		r.PageURL = p.PageURL()
	}
	if p.Behavior != nil {
		// Snapshot is taken synchronously here, before the report is
		// handed to any asynchronous stage, so the trail cannot be
		// torn by later pushes.
		r.Behavior = p.Behavior(0)
	}

	if raw.IsErrorClass() {
		stack := ""
		if raw.Error != nil {
			stack = raw.Error.Stack
		}
		r.Fingerprint = event.Fingerprint(raw.ErrorText(), stack)
	}

	return r
}

// wellFormed checks that the payload matching the kind is present.
func wellFormed(raw event.RawEvent) bool {
	switch raw.Kind {
	case event.KindError:
		return raw.Error != nil && raw.Error.Message != ""
	case event.KindHTTP:
		return raw.HTTP != nil && raw.HTTP.URL != ""
	case event.KindPerformance:
		return raw.Performance != nil
	case event.KindBehavior:
		return raw.Behavior != nil
	}
	return false
}

// minimalPayload strips a malformed event down to its recoverable
// parts.
func minimalPayload(raw event.RawEvent) event.RawEvent {
	out := event.RawEvent{Kind: raw.Kind}
	if !raw.Kind.Valid() {
		out.Kind = event.KindError
	}
	if text := raw.ErrorText(); text != "" {
		out.Error = &event.ErrorPayload{Message: text}
		out.Kind = event.KindError
	}
	return out
}
