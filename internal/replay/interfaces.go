package replay

import (
	"context"
	"time"
)

// Client issues blocking calls against one target.
type Client interface {
	Get(ctx context.Context, url string, timeout time.Duration) (Response, error)
	PostJSON(ctx context.Context, url string, body string, timeout time.Duration) (Response, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// DiffSink consumes diff records as they are found.
type DiffSink interface {
	Record(rec DiffRecord)
}
