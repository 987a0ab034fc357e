// Package affinity pins worker goroutines to CPUs on platforms that
// support it. Pinning is advisory: failures are reported but callers
// are expected to carry on unpinned.
package affinity

import "runtime"

// Pin locks the calling goroutine to its OS thread and restricts that
// thread to the CPU chosen for workerID (round-robin over the visible
// CPUs). Returns errors.ErrUnsupported on platforms without a scheduler
// affinity API.
//
// The caller must invoke the returned release function when the worker
// exits so the OS thread can be unlocked.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()

	if err := setAffinity(workerID % runtime.NumCPU()); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	return runtime.UnlockOSThread, nil
}
