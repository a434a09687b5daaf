package event

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Variable data stripped before hashing so that repeated occurrences
// of the same error group together.
var (
	numberPattern  = regexp.MustCompile(`\d+`)
	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	uuidPattern    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

// Fingerprint returns a stable hash for grouping similar errors.
// It hashes the normalized message plus the first stack frame,
// ignoring line numbers, memory addresses, and embedded IDs.
func Fingerprint(message, stack string) uint64 {
	input := normalize(message) + "|" + firstFrame(stack)
	return xxhash.Sum64String(input)
}

func normalize(s string) string {
	s = memAddrPattern.ReplaceAllString(s, "0x?")
	s = uuidPattern.ReplaceAllString(s, "<id>")
	s = numberPattern.ReplaceAllString(s, "#")
	return strings.TrimSpace(s)
}

// firstFrame extracts the first meaningful frame of a stack trace,
// skipping goroutine headers and file-path lines.
func firstFrame(stack string) string {
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "goroutine ") {
			continue
		}
		if strings.HasPrefix(line, "at ") {
			line = strings.TrimPrefix(line, "at ")
		}
		return normalize(line)
	}
	return ""
}
