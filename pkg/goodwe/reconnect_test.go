package goodwe

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	p := ReconnectPolicy{MinBackoff: 1 * time.Second, MaxBackoff: 30 * time.Second}

	assert.Equal(t, 1*time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 16*time.Second, p.Backoff(4))
	assert.Equal(t, 30*time.Second, p.Backoff(5))
	assert.Equal(t, 30*time.Second, p.Backoff(20))
}

func TestBackoffDefaultsWhenUnset(t *testing.T) {
	p := ReconnectPolicy{}
	assert.Equal(t, 1*time.Second, p.Backoff(0))
	assert.Equal(t, 1*time.Second, p.Backoff(10))
}

func TestIsTransientTransportError(t *testing.T) {
	transient := []error{
		syscall.EPIPE,
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		io.EOF,
		fmt.Errorf("wrap: %w", syscall.ETIMEDOUT),
		errors.New("read tcp 10.0.0.3:502: connection reset by peer"),
		errors.New("dial tcp: i/o timeout"),
	}
	for _, err := range transient {
		assert.True(t, IsTransientTransportError(err), "expected transient: %v", err)
	}

	deterministic := []error{
		nil,
		errors.New("modbus: exception 'illegal function'"),
		errors.New("goodwe: unknown limit mode \"bogus\""),
	}
	for _, err := range deterministic {
		assert.False(t, IsTransientTransportError(err), "expected non-transient: %v", err)
	}
}
