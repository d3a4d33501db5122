package imessage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppleUnixRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 978307200, 700000000, 1735689600, -978307200, 1<<40 + 7}
	for _, v := range values {
		assert.Equal(t, v, AppleToUnix(UnixToApple(v)), "round trip for %d", v)
		assert.Equal(t, v, UnixToApple(AppleToUnix(v)), "inverse round trip for %d", v)
	}
}

func TestAppleToUnixOffset(t *testing.T) {
	// 2001-01-01T00:00:00Z in Apple time is the Unix epoch offset itself.
	assert.Equal(t, int64(978307200), AppleToUnix(0))
	assert.Equal(t, int64(0), UnixToApple(978307200))
}

func TestAppleNanosToUnix(t *testing.T) {
	assert.Equal(t, int64(700000000+978307200), AppleNanosToUnix(700000000*1000000000))

	// Sub-second precision truncates toward zero, it does not round.
	assert.Equal(t, int64(978307201), AppleNanosToUnix(1999999999))
	assert.Equal(t, int64(978307200), AppleNanosToUnix(999999999))
}
