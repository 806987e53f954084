//go:build linux

package affinity

import "golang.org/x/sys/unix"

// setThreadAffinity pins the calling OS thread to core via
// sched_setaffinity(2).
func setThreadAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)

	return unix.SchedSetaffinity(0, &set)
}
