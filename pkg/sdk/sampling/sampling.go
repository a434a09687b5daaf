// Package sampling decides whether captured error-class events are
// emitted at all. Non-error kinds are never sampled; volume control
// applies only to errors.
package sampling

import (
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/probekit/probekit/pkg/event"
)

// Filter applies the configured sample rate and message filters.
// Safe for concurrent use.
type Filter struct {
	rate     float64
	patterns []*regexp.Regexp

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a filter with the given sample rate (clamped to [0,1])
// and compiled filter patterns.
func New(rate float64, patterns []*regexp.Regexp) *Filter {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &Filter{
		rate:     rate,
		patterns: patterns,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRandSource replaces the random source. Tests use this for
// deterministic draws.
func (f *Filter) SetRandSource(src rand.Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rnd = rand.New(src)
}

// ShouldEmit reports whether the event should proceed down the
// pipeline. Filter patterns take precedence over the sample rate: a
// match suppresses even at rate 1.
func (f *Filter) ShouldEmit(ev event.RawEvent) bool {
	if !ev.IsErrorClass() {
		return true
	}

	text := ev.ErrorText()
	for _, p := range f.patterns {
		if p.MatchString(text) {
			return false
		}
	}

	f.mu.Lock()
	draw := f.rnd.Float64()
	f.mu.Unlock()

	return draw < f.rate
}
