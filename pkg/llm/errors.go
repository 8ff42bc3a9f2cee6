package llm

import (
	"fmt"
	"io"
	"net/http"

	"github.com/papercomputeco/chatrelay/pkg/utils"
)

const (
	// ErrorPreviewLimit bounds the error body text carried in a StatusError.
	ErrorPreviewLimit = 2000

	// maxErrorBodyBytes bounds how much of a failed response is read.
	maxErrorBodyBytes = 64 * 1024
)

// Error codes used in ErrorResponse.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeUpstream       = "upstream_error"
	ErrCodeInternal       = "internal_error"
)

// ErrorResponse is the JSON body of every error the proxy returns itself.
type ErrorResponse struct {
	Error     string       `json:"error"`
	Message   string       `json:"message,omitempty"`
	Details   []FieldError `json:"details,omitempty"`
	RequestID string       `json:"requestId,omitempty"`
}

// StatusError is a non-success HTTP response from a remote service.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed: %s", e.Status)
	}
	return fmt.Sprintf("request failed: %s: %s", e.Status, e.Body)
}

// CheckResponse returns nil for a 2xx response. Otherwise it reads a bounded
// amount of the body, closes it, and returns a *StatusError whose Body holds
// at most ErrorPreviewLimit characters.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_ = resp.Body.Close()
	}

	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     status,
		Body:       utils.Prefix(string(body), ErrorPreviewLimit),
	}
}
