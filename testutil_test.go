package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// loopRunner drives a loop on a dedicated goroutine, the way callers own a
// loop in practice: Init and Run happen on that goroutine, the test
// goroutine interacts cross-thread.
type loopRunner struct {
	loop   *Loop
	gid    uint64
	status Status
	done   chan struct{}
}

// startLoop spawns a goroutine that initializes a loop and blocks in
// Run(-1). Cleanup quits, waits, and closes.
func startLoop(t testing.TB, flags Flag, opts ...LoopOption) *loopRunner {
	t.Helper()
	r := &loopRunner{done: make(chan struct{})}
	ready := make(chan error, 1)
	go func() {
		defer close(r.done)
		loop, err := New(opts...)
		if err == nil {
			err = loop.Init(flags)
		}
		if err != nil {
			ready <- err
			return
		}
		r.loop = loop
		r.gid = getGoroutineID()
		ready <- nil
		r.status = loop.Run(-1)
	}()
	if err := <-ready; err != nil {
		t.Fatal("loop start failed:", err)
	}
	t.Cleanup(func() {
		r.loop.Quit(0)
		<-r.done
		_ = r.loop.Close()
	})
	return r
}

// wait blocks until Run returns and yields its status.
func (r *loopRunner) wait(t testing.TB, timeout time.Duration) Status {
	t.Helper()
	select {
	case <-r.done:
		return r.status
	case <-time.After(timeout):
		t.Fatal("loop did not stop in time")
		return 0
	}
}

// testSocketpair creates a connected non-blocking socket pair, closed via
// cleanup.
func testSocketpair(t testing.TB) (int, int) {
	t.Helper()
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal("socketpair failed:", err)
	}
	for _, fd := range pair {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatal("set nonblock failed:", err)
		}
	}
	t.Cleanup(func() {
		unix.Close(pair[0])
		unix.Close(pair[1])
	})
	return pair[0], pair[1]
}

// testPipe creates a non-blocking pipe, closed via cleanup.
func testPipe(t testing.TB) (int, int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatal("pipe failed:", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatal("set nonblock failed:", err)
		}
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// waitUntil polls cond up to timeout.
func waitUntil(t testing.TB, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
