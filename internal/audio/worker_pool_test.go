package audio

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsScheduledTasks(t *testing.T) {
	p := NewWorkerPool("t", 2, 30, 70, 70)
	defer p.Shutdown()

	var count int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Schedule(func() {
			atomic.AddInt32(&count, 1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.EqualValues(t, 10, atomic.LoadInt32(&count))
}

func TestWorkerPoolScheduleBlocksAtHardLimitAndUnblocks(t *testing.T) {
	p := NewWorkerPool("t", 3, 2, 3, 3)
	defer p.Shutdown()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Schedule(func() {
			started.Done()
			<-release
		}))
	}
	started.Wait()

	blocked := make(chan struct{})
	go func() {
		_ = p.Schedule(func() {})
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("Schedule should have blocked at hard limit")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("Schedule never unblocked")
	}
}

func TestWorkerPoolWaitForCompletion(t *testing.T) {
	p := NewWorkerPool("t", 2, 30, 70, 70)
	defer p.Shutdown()

	var done int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Schedule(func() {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&done, 1)
		}))
	}
	p.WaitForCompletion()
	assert.EqualValues(t, 5, atomic.LoadInt32(&done))
	assert.Equal(t, 0, p.ActiveTasks())
}

func TestWorkerPoolRejectsAfterShutdown(t *testing.T) {
	p := NewWorkerPool("t", 1, 30, 70, 70)
	p.Shutdown()
	err := p.Schedule(func() {})
	assert.ErrorIs(t, err, ErrPoolShuttingDown)
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	p := NewWorkerPool("t", 1, 30, 70, 70)
	defer p.Shutdown()

	var ran int32
	require.NoError(t, p.Schedule(func() { panic("boom") }))
	require.NoError(t, p.Schedule(func() { atomic.AddInt32(&ran, 1) }))
	p.WaitForCompletion()
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestWorkerPoolActiveTasksGaugeTracksSchedule(t *testing.T) {
	p := NewWorkerPool("t", 1, 30, 70, 70)
	defer p.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Schedule(func() {
		close(started)
		<-release
	}))
	<-started

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(GetMetrics().WorkerActiveTasks) == 1
	}, time.Second, time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(GetMetrics().WorkerActiveTasks) == 0
	}, time.Second, time.Millisecond)
}

func TestWorkerPoolBlockedCounterIncrementsAtHardLimit(t *testing.T) {
	p := NewWorkerPool("t", 1, 1, 1, 1)
	defer p.Shutdown()

	before := testutil.ToFloat64(GetMetrics().WorkerBlockedTotal)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Schedule(func() {
		close(started)
		<-release
	}))
	<-started

	blocked := make(chan struct{})
	go func() {
		_ = p.Schedule(func() {})
		close(blocked)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(GetMetrics().WorkerBlockedTotal) == before+1
	}, time.Second, time.Millisecond)

	close(release)
	<-blocked
}
