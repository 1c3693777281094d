package reactor

import "runtime"

// getGoroutineID returns the current goroutine's ID.
//
// It parses the header of the stack trace produced by runtime.Stack, which
// begins "goroutine N [...". This is the loop's notion of a thread identity:
// each loop is owned by the goroutine that initialized it, and dispatch-side
// entry points compare against the recorded ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
