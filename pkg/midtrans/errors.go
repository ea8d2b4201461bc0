package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"

	sdk "github.com/midtrans/midtrans-go"

	pkgerrors "github.com/faisalrasbihan/algosaham-4-sub001/pkg/errors"
)

// APIError is a failed gateway call. HTTPStatus is zero when no response
// arrived; Cause then holds the transport error.
type APIError struct {
	HTTPStatus    int
	StatusMessage string
	Cause         error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.HTTPStatus == 0 && e.Cause != nil {
		return fmt.Sprintf("midtrans request failed: %v", e.Cause)
	}
	return fmt.Sprintf("midtrans status %d: %s", e.HTTPStatus, e.StatusMessage)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Temporary reports whether repeating an idempotent request may succeed.
func (e *APIError) Temporary() bool {
	if e == nil {
		return false
	}
	switch {
	case e.HTTPStatus == 0:
		return e.Cause != nil
	case e.HTTPStatus == http.StatusRequestTimeout, e.HTTPStatus == http.StatusTooManyRequests:
		return true
	default:
		return e.HTTPStatus >= http.StatusInternalServerError
	}
}

// fromSDK maps the SDK error onto APIError, tagged as a dependency failure.
func fromSDK(err *sdk.Error) error {
	if err == nil {
		return nil
	}
	apiErr := &APIError{
		HTTPStatus:    err.StatusCode,
		StatusMessage: err.Message,
		Cause:         err.RawError,
	}
	// http.Client failures never produced a response; drop the SDK's synthetic status
	var urlErr *url.Error
	if errors.As(err.RawError, &urlErr) {
		apiErr.HTTPStatus = 0
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, apiErr, "midtrans request")
}

// IsRetryable reports whether an idempotent call (read, disable) may be repeated.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}

// IsRetryableCreate reports whether a non-idempotent create may be repeated:
// only when the request never reached the gateway, or the gateway explicitly
// refused it before doing work (429, 503). Timeouts and other 5xx may have
// created the resource and are never repeated.
func IsRetryableCreate(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.HTTPStatus {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case 0:
		return notSent(apiErr.Cause)
	default:
		return false
	}
}

func notSent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
