//go:build linux

package audio

import (
	"runtime"
	"syscall"
	"unsafe"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
	"github.com/rs/zerolog"
)

const (
	schedNormal = 0
	schedFIFO   = 1
)

type schedParam struct {
	Priority int32
}

// PriorityScheduler applies the fixed-priority scheduling model of
// spec.md §5 to the calling goroutine: SCHED_FIFO where the kernel
// permits it, falling back to a nice-value adjustment otherwise. Adapted
// from the teacher's priority_scheduler.go (same SYS_SCHED_SETSCHEDULER
// syscall, same nice-value fallback), generalized from three audio-only
// priority tiers to the five long-lived tasks spec.md §5 names.
type PriorityScheduler struct {
	logger  *zerolog.Logger
	enabled bool
}

// NewPriorityScheduler returns a scheduler enabled by default; call
// Disable in environments (containers, CI) that forbid SCHED_FIFO.
func NewPriorityScheduler() *PriorityScheduler {
	return &PriorityScheduler{
		logger:  logging.Get("priority-scheduler"),
		enabled: true,
	}
}

func (ps *PriorityScheduler) Disable() { ps.enabled = false }
func (ps *PriorityScheduler) Enable()  { ps.enabled = true }

// SetPriority locks the calling goroutine to its OS thread and attempts
// to raise that thread's scheduling priority. Must be called from the
// goroutine whose priority is being set. The Session loop, capture loop,
// and playback loop each call this once at startup; WorkerPool goroutines
// do not, so Config.WorkerPoolPriority is not applied to them.
func (ps *PriorityScheduler) SetPriority(priority int) error {
	if !ps.enabled {
		return nil
	}
	runtime.LockOSThread()

	tid := syscall.Gettid()
	param := &schedParam{Priority: int32(priority)}

	_, _, errno := syscall.Syscall(syscall.SYS_SCHED_SETSCHEDULER,
		uintptr(tid), uintptr(schedFIFO), uintptr(unsafe.Pointer(param)))
	if errno != 0 {
		ps.logger.Warn().Int("errno", int(errno)).Msg("SCHED_FIFO unavailable, falling back to nice")
		return ps.setNice(priority)
	}
	ps.logger.Debug().Int("tid", tid).Int("priority", priority).Msg("thread priority set")
	return nil
}

func (ps *PriorityScheduler) setNice(rtPriority int) error {
	niceValue := (40 - rtPriority) / 4
	if niceValue < -19 {
		niceValue = -19
	}
	if niceValue > 19 {
		niceValue = 19
	}
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, 0, niceValue); err != nil {
		ps.logger.Warn().Err(err).Int("nice", niceValue).Msg("failed to set nice priority")
		return err
	}
	return nil
}

// ResetPriority restores the calling thread to normal scheduling.
func (ps *PriorityScheduler) ResetPriority() error {
	if !ps.enabled {
		return nil
	}
	runtime.LockOSThread()
	tid := syscall.Gettid()
	param := &schedParam{Priority: 0}
	_, _, errno := syscall.Syscall(syscall.SYS_SCHED_SETSCHEDULER,
		uintptr(tid), uintptr(schedNormal), uintptr(unsafe.Pointer(param)))
	if errno != 0 {
		return errno
	}
	return nil
}
