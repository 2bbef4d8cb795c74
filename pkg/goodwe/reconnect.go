package goodwe

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// ReconnectPolicy bounds the exponential backoff applied between reconnect
// attempts after transient transport failures.
type ReconnectPolicy struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MinBackoff: 1 * time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Backoff returns min * 2^failures capped at max.
func (p ReconnectPolicy) Backoff(failures int) time.Duration {
	min := p.MinBackoff
	if min <= 0 {
		min = time.Second
	}
	max := p.MaxBackoff
	if max < min {
		max = min
	}
	backoff := min
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

// IsTransientTransportError reports whether err looks like a socket-level
// failure that a reconnect may fix (reset, refused, broken pipe, timeout),
// as opposed to a deterministic Modbus exception response.
func IsTransientTransportError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.ENOTCONN) {
		return true
	}

	// last-resort string checks, modbus libraries tend to wrap socket errors
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"broken pipe",
		"connection reset",
		"connection aborted",
		"connection refused",
		"timed out",
		"timeout",
		"no route to host",
		"network is unreachable",
		"not connected",
		"connection closed",
		"use of closed network connection",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
