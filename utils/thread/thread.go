// Package thread pins the calling goroutine to one CPU core, keeping the
// capture loop of a station off the cores busy with other work.
package thread

/*
   #define _GNU_SOURCE
   #include <sched.h>
   #include <pthread.h>

   int set_cpu_affinity(int core_id) {
       cpu_set_t cpuset;
       CPU_ZERO(&cpuset);
       CPU_SET(core_id, &cpuset);
       return pthread_setaffinity_np(pthread_self(), sizeof(cpu_set_t), &cpuset);
   }
*/
import "C"

import (
	"runtime"

	"github.com/pkg/errors"
)

// Pin locks the calling goroutine to its OS thread and binds that thread to
// core. Call Unpin from the same goroutine to release it. A negative core
// does nothing.
func Pin(core int) error {
	if core < 0 {
		return nil
	}
	if core >= runtime.NumCPU() {
		return errors.Errorf("Can not pin to cpu %d: only %d available", core, runtime.NumCPU())
	}
	runtime.LockOSThread()
	if rc := C.set_cpu_affinity(C.int(core)); rc != 0 {
		runtime.UnlockOSThread()
		return errors.Errorf("Can not pin to cpu %d: error %d", core, int(rc))
	}
	return nil
}

func Unpin() {
	runtime.UnlockOSThread()
}
