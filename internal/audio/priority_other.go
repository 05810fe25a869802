//go:build !linux

package audio

// PriorityScheduler is a no-op on platforms without SCHED_FIFO support,
// mirroring the teacher's native_notlinux.go stub pattern: the same
// exported surface compiles everywhere, but only does real work on Linux.
type PriorityScheduler struct{}

func NewPriorityScheduler() *PriorityScheduler { return &PriorityScheduler{} }

func (ps *PriorityScheduler) Disable()                    {}
func (ps *PriorityScheduler) Enable()                     {}
func (ps *PriorityScheduler) SetPriority(priority int) error { return nil }
func (ps *PriorityScheduler) ResetPriority() error           { return nil }
