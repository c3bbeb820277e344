package offload

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MadBale/Mewsage-project/internal/errors"
)

func TestSubmitRunsTask(t *testing.T) {
	t.Parallel()

	p := NewPool(2)
	defer func() { _ = p.Shutdown(context.Background()) }()

	var ran atomic.Bool
	err := p.Submit(context.Background(), func() { ran.Store(true) })
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestDoReturnsResult(t *testing.T) {
	t.Parallel()

	p := NewPool(2)
	defer func() { _ = p.Shutdown(context.Background()) }()

	got, err := Do(context.Background(), p, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Do(context.Background(), p, func() (int, error) {
		return 0, errors.NewStd("inference blew up")
	})
	assert.EqualError(t, err, "inference blew up")
}

func TestSubmitTimeoutAbandonsWait(t *testing.T) {
	t.Parallel()

	p := NewPool(1)
	defer func() { _ = p.Shutdown(context.Background()) }()

	release := make(chan struct{})
	var completed atomic.Bool

	// occupy the single worker
	go func() {
		_ = p.Submit(context.Background(), func() {
			<-release
			completed.Store(true)
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() {})
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))

	close(release)
	assert.Eventually(t, completed.Load, time.Second, 5*time.Millisecond)
}

func TestConcurrentSubmitsAllRun(t *testing.T) {
	t.Parallel()

	p := NewPool(4)
	defer func() { _ = p.Shutdown(context.Background()) }()

	const n = 100
	var counter atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = p.Submit(context.Background(), func() { counter.Add(1) })
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), counter.Load())
}

func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	p := NewPool(1)
	defer func() { _ = p.Shutdown(context.Background()) }()

	release := make(chan struct{})
	go func() {
		_ = p.Submit(context.Background(), func() { <-release })
	}()
	time.Sleep(20 * time.Millisecond)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		n := i
		go func() {
			defer wg.Done()
			_ = p.Submit(context.Background(), func() {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
			})
		}()
		// stagger enqueue so the queue order is deterministic
		time.Sleep(10 * time.Millisecond)
	}

	close(release)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	t.Parallel()

	p := NewPool(2)
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(context.Background(), func() {})
	assert.Error(t, err)
}

func TestShutdownDrainsQueue(t *testing.T) {
	t.Parallel()

	p := NewPool(2)
	var counter atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Submit(context.Background(), func() {
				time.Sleep(time.Millisecond)
				counter.Add(1)
			})
		}()
	}
	wg.Wait()
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int64(20), counter.Load())
}

func TestDefaultWorkerCount(t *testing.T) {
	t.Parallel()

	p := NewPool(0)
	defer func() { _ = p.Shutdown(context.Background()) }()
	assert.Positive(t, p.Workers())
}
