//go:build !linux

package affinity

// setThreadAffinity is a no-op outside Linux: sched_setaffinity has no
// portable equivalent, so a Pinner on other platforms still picks
// cores round-robin (useful for tests and for labeling output) but
// cannot actually bind the OS thread to one.
func setThreadAffinity(core int) error {
	return nil
}
