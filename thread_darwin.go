//go:build darwin

package hvcore

/*
#include <pthread.h>
#include <stdint.h>

static int go_thread_id(uint64_t *tid) {
	return pthread_threadid_np(NULL, tid);
}
*/
import "C"

import "fmt"

// threadID returns the system-wide id of the calling OS thread. The caller
// must have locked its goroutine to the thread.
func threadID() (uint64, error) {
	var tid C.uint64_t
	if rc := C.go_thread_id(&tid); rc != 0 {
		return 0, fmt.Errorf("hv: pthread_threadid_np failed: %d", int(rc))
	}
	return uint64(tid), nil
}
