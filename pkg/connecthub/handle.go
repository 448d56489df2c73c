package connecthub

import "sync"

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Init initializes the process-wide client handle exactly once. Subsequent
// calls are no-ops and return the already-initialized client, so it is safe
// to call from multiple entry points.
func Init(cfg Config) *Client {
	defaultOnce.Do(func() {
		defaultClient = NewClient(cfg)
	})
	return defaultClient
}

// Default returns the process-wide client handle, or nil when Init has not
// been called. Callers must treat nil as "provider not configured".
func Default() *Client {
	return defaultClient
}
