package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1500 ms"},
		{45 * time.Second, "45.00 seconds"},
		{3 * time.Minute, "3.00 minutes"},
		{3 * time.Hour, "3.00 hours"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatElapsed(c.in))
	}
}

func TestOpenRedisFromEnvDisabled(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	assert.Nil(t, OpenRedisFromEnv())
}
