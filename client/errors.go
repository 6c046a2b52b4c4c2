package client

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/bigraph/internal/breaker"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("graph client is closed")

// ErrCircuitOpen is returned without contacting the server after repeated
// Unavailable failures, until the breaker's probe succeeds.
var ErrCircuitOpen = breaker.ErrOpen

// IsInvalidArgument reports whether the server rejected the request, for
// example an edge its codec cannot represent or a malformed ticket.
func IsInvalidArgument(err error) bool {
	return status.Code(err) == codes.InvalidArgument
}

// IsThrottled reports whether the server's rate limiter refused the call.
func IsThrottled(err error) bool {
	return status.Code(err) == codes.ResourceExhausted
}

// retryable reports whether a read may be retried on the same connection.
func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// unavailable is what trips the client's circuit breaker. Rejections and
// throttling mean the server is up.
func unavailable(err error) bool {
	return status.Code(err) == codes.Unavailable
}
