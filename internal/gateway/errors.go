package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrResolutionExhausted matches every *ResolutionError.
	ErrResolutionExhausted = errors.New("all candidate endpoints failed")

	// ErrInstanceConflict signals that instance creation lost a race with
	// another actor creating the same instance.
	ErrInstanceConflict = errors.New("instance already exists")
)

// TransportError is a network failure or a non-2xx answer.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnstructuredResponseError is a 2xx answer whose content type is not JSON,
// typically an HTML error page served by a proxy in front of the gateway.
type UnstructuredResponseError struct {
	Method      string
	URL         string
	ContentType string
}

func (e *UnstructuredResponseError) Error() string {
	ct := e.ContentType
	if ct == "" {
		ct = "none"
	}
	return fmt.Sprintf("%s %s: unstructured response (content type %s)", e.Method, e.URL, ct)
}

// DecodeError is a JSON answer that does not map to the expected shape.
type DecodeError struct {
	Candidate string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Candidate, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Attempt records the failure of one candidate.
type Attempt struct {
	Candidate string
	Err       error
}

// ResolutionError reports that every candidate of a capability failed.
type ResolutionError struct {
	Capability string
	Attempts   []Attempt
}

func (e *ResolutionError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("resolve %s: no candidates", e.Capability)
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("resolve %s: %d candidates failed, last %s: %v",
		e.Capability, len(e.Attempts), last.Candidate, last.Err)
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionExhausted
}

func (e *ResolutionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// NotFound reports whether every attempt ended in HTTP 404.
func (e *ResolutionError) NotFound() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if StatusCode(a.Err) != http.StatusNotFound {
			return false
		}
	}
	return true
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
