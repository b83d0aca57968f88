package httpclient

import "fmt"

// UpstreamError represents a non-2xx response from an upstream service.
// The raw body is kept so callers can classify the failure.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d from %s", e.StatusCode, e.URL)
}
