package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_DrainsOnStop(t *testing.T) {
	wp := NewWorkerPool(2, 16)
	assert.False(t, wp.Submit(func() {}), "not started")

	wp.Start()
	var done int32
	for i := 0; i < 10; i++ {
		require.True(t, wp.Submit(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&done, 1)
		}))
	}
	wp.Stop()

	assert.Equal(t, int32(10), atomic.LoadInt32(&done))
	assert.False(t, wp.Submit(func() {}))

	wp.Start()
	assert.False(t, wp.Submit(func() {}), "a stopped pool stays stopped")
	wp.Stop()
}

func TestWorkerPool_FullQueueRejects(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	wp.Start()
	defer wp.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, wp.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	require.True(t, wp.Submit(func() {}))
	assert.False(t, wp.Submit(func() {}))
	assert.Equal(t, 1, wp.Pending())
	close(block)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond)
	assert.True(t, rl.TryWait())
	assert.True(t, rl.TryWait())
	assert.False(t, rl.TryWait())

	rl.Start()
	defer rl.Stop()
	assert.Eventually(t, rl.TryWait, time.Second, 5*time.Millisecond)
}

func TestUUIDs(t *testing.T) {
	assert.True(t, IsValidUUID(GenerateUUID()))
	assert.True(t, IsValidUUID(GenerateUUIDv1()))
	assert.False(t, IsValidUUID("not-a-uuid"))

	assert.Equal(t, InputUUID("mxf", "a.mxf"), InputUUID("mxf", "a.mxf"))
	assert.NotEqual(t, InputUUID("mxf", "a.mxf"), InputUUID("raw", "a.mxf"))
}
