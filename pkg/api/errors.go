package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Problem implements RFC 9457 problem details.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`

	// Log carries the internal error for server-side logging only.
	Log error `json:"-"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

func (p *Problem) MarshalJSON() ([]byte, error) {
	type Alias Problem

	data := make(map[string]interface{})
	for k, v := range p.Extensions {
		data[k] = v
	}

	stdJSON, _ := json.Marshal(Alias(*p))
	_ = json.Unmarshal(stdJSON, &data)

	return json.Marshal(data)
}

type ProblemOption func(*Problem)

// NewError creates a generic Problem.
func NewError(status int, title, detail string, opts ...ProblemOption) *Problem {
	p := &Problem{
		Type:       "about:blank", // RFC default
		Title:      title,
		Status:     status,
		Detail:     detail,
		Extensions: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithExtension adds a custom key-value pair to the response.
func WithExtension(key string, value interface{}) ProblemOption {
	return func(p *Problem) {
		p.Extensions[key] = value
	}
}

// WithLog attaches an internal error for server-side logging.
func WithLog(err error) ProblemOption {
	return func(p *Problem) {
		p.Log = err
	}
}

// WithType sets the RFC "type" URI.
func WithType(uri string) ProblemOption {
	return func(p *Problem) {
		p.Type = uri
	}
}

// ValidationError creates a rich validation error from a field error map.
func ValidationError(fieldErrors map[string]string) *Problem {
	return NewError(
		http.StatusBadRequest,
		"Validation Error",
		"One or more fields failed validation",
		WithExtension("errors", fieldErrors),
	)
}

// BadRequestError creates a standard error for a bad request.
func BadRequestError(detail string, opts ...ProblemOption) *Problem {
	return NewError(http.StatusBadRequest, "Bad Request", detail, opts...)
}

// UnauthorizedError creates a 401 problem.
func UnauthorizedError(detail string) *Problem {
	return NewError(http.StatusUnauthorized, "Unauthorized", detail)
}

// RateLimitError creates a 429 problem with a retry hint in seconds.
func RateLimitError(reason string, retryAfter int) *Problem {
	return NewError(
		http.StatusTooManyRequests,
		"Rate Limit Exceeded",
		"Too many requests, slow down",
		WithExtension("reason", reason),
		WithExtension("retry", retryAfter),
	)
}

// QuotaExceededError creates a 402 problem for the free-tier metering gate.
func QuotaExceededError(minutesUsed, limit int) *Problem {
	return NewError(
		http.StatusPaymentRequired,
		"Free Limit Reached",
		"Monthly free minutes are exhausted",
		WithExtension("reason", "free_limit_reached"),
		WithExtension("minutesUsed", minutesUsed),
		WithExtension("limit", limit),
	)
}

// InternalError creates a 500 problem carrying the original error for logs.
func InternalError(detail string, err error) *Problem {
	return NewError(http.StatusInternalServerError, "Internal Server Error", detail, WithLog(err))
}
