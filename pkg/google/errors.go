package google

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// RequestError is returned when the Calendar API answers with a non-success
// status. Transient and permanent failures are not told apart; retrying is
// up to the caller.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: calendar API returned %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: calendar API returned %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a request error for a missing or
// already deleted resource.
func IsNotFound(err error) bool {
	var re *RequestError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusNotFound || re.StatusCode == http.StatusGone
}

// wrapErr turns API failures into *RequestError and annotates everything
// else (transport errors, cancellation) with the operation name.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &RequestError{Op: op, StatusCode: gerr.Code, Body: gerr.Body, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
