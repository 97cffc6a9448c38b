package session

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// retryablePatterns is the textual fallback classification. Matching is
// case-insensitive against the error's description. The list follows the
// failure modes observed with long-lived IMAP sessions: server-side
// session invalidation, idle disconnects and transient resets.
var retryablePatterns = []string{
	"invalid session",
	"session expired",
	"connection lost",
	"connection reset",
	"connection closed",
	"closed by peer",
	"timeout",
	"timed out",
	"broken pipe",
	"unexpected end of stream",
	"eof occurred",
	"command bye",
}

// Retryable reports whether an error warrants discarding the session
// and retrying the operation on a fresh connection.
//
// Structured checks run first; the substring table is a last-resort
// fallback since error text varies across servers and transports.
// Anything unmatched is treated as permanent so that genuine protocol
// errors (bad credentials, malformed requests) are never masked.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	// Caller-initiated cancellation must never loop.
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	text := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}

	return false
}
