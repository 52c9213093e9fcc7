package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/metrics"
)

// ErrorKind classifies a failed delivery. It only feeds logs and metrics;
// callers see the collapsed DeliveryResult.
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration"
	KindNetwork           ErrorKind = "network"
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindProvider          ErrorKind = "provider"
)

// DeliveryError is returned by the adapters' internal send paths.
type DeliveryError struct {
	Kind       ErrorKind
	StatusCode int
	Msg        string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func configError(format string, args ...interface{}) *DeliveryError {
	return &DeliveryError{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

func providerError(kind ErrorKind, status int, format string, args ...interface{}) *DeliveryError {
	return &DeliveryError{Kind: kind, StatusCode: status, Msg: fmt.Sprintf(format, args...)}
}

// transportError maps an http.Client error to a timeout or network failure.
// The timeout message names the configured limit so it reads differently
// from network and provider errors.
func transportError(provider string, timeout time.Duration, err error) *DeliveryError {
	if isTimeout(err) {
		return &DeliveryError{
			Kind: KindTimeout,
			Msg:  fmt.Sprintf("%s request timed out after %s", provider, timeout),
			Err:  err,
		}
	}
	return &DeliveryError{
		Kind: KindNetwork,
		Msg:  fmt.Sprintf("%s network error: %v", provider, err),
		Err:  err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// KindOf returns the classification of err, or KindProvider for foreign
// errors.
func KindOf(err error) ErrorKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindProvider
}

// resultFromError collapses err into a failed DeliveryResult.
func resultFromError(err error, start time.Time) domain.DeliveryResult {
	res := domain.DeliveryResult{Success: false, Error: err.Error(), DurationMs: sinceMs(start)}
	var de *DeliveryError
	if errors.As(err, &de) {
		res.StatusCode = de.StatusCode
	}
	metrics.IncNotificationError(string(KindOf(err)))
	return res
}

func successResult(status int, start time.Time) domain.DeliveryResult {
	return domain.DeliveryResult{Success: true, StatusCode: status, DurationMs: sinceMs(start)}
}

func sinceMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
