package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketResetsEachSecond(t *testing.T) {
	now := time.Unix(1000, 200*int64(time.Millisecond))
	tb := NewTokenBucket(2)
	tb.now = func() time.Time { return now }

	ok, _ := tb.allow()
	assert.True(t, ok)
	ok, _ = tb.allow()
	assert.True(t, ok)
	ok, wait := tb.allow()
	assert.False(t, ok)
	assert.Equal(t, 800*time.Millisecond, wait)

	now = now.Add(time.Second)
	ok, _ = tb.allow()
	assert.True(t, ok)
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	now := time.Unix(2000, 0)
	tb := NewTokenBucket(1)
	tb.now = func() time.Time { return now }
	require.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.Canceled)
}

func TestFetchThrottledStillServes(t *testing.T) {
	var hits int32
	body := tilePNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	opts := fastOptions
	opts.RateLimitQPS = 100
	f := New(opts, nil)
	for i := 0; i < 3; i++ {
		assert.True(t, f.Fetch(context.Background(), srv.URL+"/20/1/2").Present())
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
