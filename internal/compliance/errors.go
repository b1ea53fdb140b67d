package compliance

import "fmt"

// UpstreamError wraps a failed or timed out third-party call. It never aborts
// intake; the decision degrades instead.
type UpstreamError struct {
	Call string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("compliance: %s: %v", e.Call, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
