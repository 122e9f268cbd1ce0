// Package idgen mints unique, domain-prefixed entity identifiers and
// supplies process-monotonic timestamps (component C1), grounded on the
// teacher's internal/idgen package (slug generation, base36 ids).
package idgen

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Domain prefixes for minted entity ids.
const (
	PrefixTask        = "task"
	PrefixKnowledge   = "know"
	PrefixProject     = "proj"
	PrefixTransaction = "txn"
	PrefixTrace       = "trace"
	PrefixCitation    = "cite"
)

var mintCounter uint64

// New mints a "<prefix>_<12 base36 chars>" identifier. The trailing
// segment mixes a CSPRNG draw with a process-local monotonic counter so
// collision probability stays negligible even under bursts that exhaust
// timer resolution.
func New(prefix string) string {
	n := atomic.AddUint64(&mintCounter, 1)
	var b strings.Builder
	b.Grow(12)

	// Seed the first half from the counter (monotonic, never repeats
	// within a process), the rest from crypto/rand.
	counterPart := encodeBase36(n, 6)
	b.WriteString(counterPart)

	for b.Len() < 12 {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36Alphabet))))
		if err != nil {
			// crypto/rand failure is effectively unrecoverable entropy
			// starvation; fall back to the counter's lower digits rather
			// than panicking the mint path.
			b.WriteByte(base36Alphabet[n%uint64(len(base36Alphabet))])
			n++
			continue
		}
		b.WriteByte(base36Alphabet[idx.Int64()])
	}

	return prefix + "_" + b.String()[:12]
}

func encodeBase36(n uint64, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = base36Alphabet[n%36]
		n /= 36
	}
	return string(buf)
}

// Clock supplies monotonic-within-process milliseconds-since-epoch
// timestamps, clamping any non-monotonic reading to previous+1 (spec §4.1).
type Clock struct {
	mu   sync.Mutex
	last int64
}

// NewClock constructs a Clock.
func NewClock() *Clock { return &Clock{} }

// Now returns the current timestamp, guaranteed to be strictly greater
// than the previous value returned by this Clock.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// StopWords are common words stripped from titles during slug generation.
var StopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "with": true, "by": true, "from": true, "as": true,
	"and": true, "or": true, "but": true, "nor": true,
	"is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true,
}

var (
	nonAlphanumericRegex   = regexp.MustCompile(`[^a-z0-9]+`)
	multipleUnderscoreRegex = regexp.MustCompile(`_+`)
)

const maxSlugLength = 46

// Slugify converts a Task name into a lowercase, underscore-separated path
// segment suggestion, stripping stop words and truncating to 46 characters
// at a word boundary. Used when a caller creates a Task by name without an
// explicit path.
func Slugify(title string) string {
	if title == "" {
		return "untitled"
	}

	slug := strings.ToLower(title)
	slug = nonAlphanumericRegex.ReplaceAllString(slug, " ")
	words := strings.Fields(slug)

	filtered := make([]string, 0, len(words))
	for _, w := range words {
		if !StopWords[w] {
			filtered = append(filtered, w)
		}
	}
	if len(filtered) == 0 && len(words) > 0 {
		filtered = []string{words[0]}
	}

	slug = strings.Join(filtered, "_")
	if len(slug) > 0 && !unicode.IsLetter(rune(slug[0])) {
		slug = "n" + slug
	}

	if len(slug) > maxSlugLength {
		truncated := slug[:maxSlugLength]
		if idx := strings.LastIndex(truncated, "_"); idx > maxSlugLength/2 {
			truncated = truncated[:idx]
		}
		slug = truncated
	}
	if len(slug) < 3 {
		slug = slug + strings.Repeat("x", 3-len(slug))
	}

	slug = strings.Trim(slug, "_")
	slug = multipleUnderscoreRegex.ReplaceAllString(slug, "_")
	if slug == "" {
		slug = "untitled"
	}
	return slug
}
