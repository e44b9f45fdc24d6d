package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base, max := 30*time.Second, 30*time.Minute
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{6, 16 * time.Minute},
		{7, 30 * time.Minute},
		{64, 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.n, base, max), "attempt %d", tt.n)
	}
}

func TestClientLimiter(t *testing.T) {
	unlimited := newClientLimiter(0)
	for i := 0; i < 10; i++ {
		_, ok := unlimited.tryAcquire("c1")
		assert.True(t, ok)
	}

	l := newClientLimiter(2)
	r1, ok := l.tryAcquire("c1")
	assert.True(t, ok)
	_, ok = l.tryAcquire("c1")
	assert.True(t, ok)
	_, ok = l.tryAcquire("c1")
	assert.False(t, ok)
	_, ok = l.tryAcquire("c2")
	assert.True(t, ok, "other clients are unaffected")

	r1()
	_, ok = l.tryAcquire("c1")
	assert.True(t, ok)
}
