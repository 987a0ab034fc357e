//go:build linux

package affinity

import "golang.org/x/sys/unix"

func setAffinity(cpu int) error {
	var set unix.CPUSet
	set.Set(cpu)
	// Pid 0 targets the calling thread.
	return unix.SchedSetaffinity(0, &set)
}
