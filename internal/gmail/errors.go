// internal/gmail/errors.go
package gmail

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/api/googleapi"
)

// RequestError means the client built an invalid request (for example an
// empty search query). It is never retried.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("malformed request: %s", e.Reason)
}

// ResponseError means the provider returned unparseable or incomplete data.
type ResponseError struct {
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Reason == "" {
		return "malformed response from server"
	}
	return fmt.Sprintf("malformed response: %s", e.Reason)
}

// ConnectionError is a transport-level failure. It is eligible for the next
// scheduled retry and never retried in a tight loop.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// APIError means the provider explicitly rejected the request; Code and
// Description are the provider's own.
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gmail reported an error (%q, code %s)", e.Description, e.Code)
}

// OperationError is a caller-level precondition violation, such as adding a
// duplicate account.
type OperationError struct {
	Reason string
}

func (e *OperationError) Error() string { return e.Reason }

// ClassifyAPIError translates an error returned by the Google API client into
// the local taxonomy: explicit provider rejections become APIError, anything
// else a ConnectionError.
func ClassifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{Code: strconv.Itoa(gerr.Code), Description: gerr.Message}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ConnectionError{Err: err}
}
