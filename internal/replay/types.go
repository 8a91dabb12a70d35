// Package replay defines the types shared by the replay pipeline.
package replay

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// Method selects how a payload is sent to both targets.
type Method string

// Supported request methods.
const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// ParseMethod converts user input into a Method, failing on anything other
// than GET or POST.
func ParseMethod(raw string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(raw))); m {
	case MethodGet, MethodPost:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, raw)
	}
}

// Entry is one captured payload line. GET payloads are already
// percent-encoded query strings; POST payloads are already JSON.
type Entry struct {
	Payload string
}

// Config is shared read-only by every worker of a pool.
type Config struct {
	OldURL      string
	NewURL      string
	Method      Method
	Timeout     time.Duration
	QueueSize   int
	Concurrency int

	// RateLimit caps requests per second against each target host; zero
	// means unlimited.
	RateLimit float64
	RateBurst int
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.OldURL == "" {
		return fmt.Errorf("%w: old url is empty", ErrMissingURL)
	}
	if c.NewURL == "" {
		return fmt.Errorf("%w: new url is empty", ErrMissingURL)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be > 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must be >= 0")
	}
	return nil
}

// Response is the outcome of a single call against one target.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Text decodes the raw body as UTF-8, replacing invalid sequences with
// U+FFFD.
func (r Response) Text() string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(r.Body)
	if err != nil {
		return strings.ToValidUTF8(string(r.Body), "�")
	}
	return string(decoded)
}

// Pair holds both responses for one entry, old target first.
type Pair struct {
	Entry Entry
	Old   Response
	New   Response
}

// DiffRecord describes a pair whose bodies differ. It is handed to a sink
// and not retained.
type DiffRecord struct {
	Payload   string
	OldURL    string
	NewURL    string
	OldStatus int
	NewStatus int
	OldBody   string
	NewBody   string
	OldHash   string
	NewHash   string
}
