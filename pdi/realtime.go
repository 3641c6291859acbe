// Copyright 2026 The xpdi Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pdi

import (
	"golang.org/x/sys/unix"
)

// realtimePriority is the maximum SCHED_FIFO priority on Linux. The PDI
// bit-bang loop cannot tolerate being preempted mid-byte, so it asks for
// as much of the CPU as the scheduler will give it.
const realtimePriority = 99

// requestRealtime pins the process to CPU 0, switches it to SCHED_FIFO
// and locks its memory to keep the bit-bang loop from being preempted or
// paged out mid-clock. Failures are silently ignored rather than
// fatal: a PDI session run without root, or on a kernel that refuses
// SCHED_FIFO, still works, just with looser timing margins.
func requestRealtime() {
	var set unix.CPUSet
	set.Zero()
	set.Set(0)
	unix.SchedSetaffinity(0, &set)

	unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: int32(realtimePriority)})

	unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

// restoreScheduling reverts the effects of requestRealtime.
func restoreScheduling() {
	unix.Munlockall()
	unix.SchedSetscheduler(0, unix.SCHED_OTHER, &unix.SchedParam{Priority: 0})
}
