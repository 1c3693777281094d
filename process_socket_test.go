package reactor

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newOwnedLoop(t testing.TB, opts ...LoopOption) *Loop {
	t.Helper()
	loop, err := New(opts...)
	if err != nil {
		t.Fatal("New failed:", err)
	}
	if err := loop.Init(0); err != nil {
		t.Fatal("Init failed:", err)
	}
	t.Cleanup(func() { loop.Close() })
	return loop
}

func TestProcessSocket_DispatchesOne(t *testing.T) {
	loop := newOwnedLoop(t)
	readFd, writeFd := testSocketpair(t)

	var fired atomic.Int32
	var gotMode Mode
	if err := loop.RegisterSocket(readFd, SocketRead, func(fd int, mode Mode) {
		var buf [16]byte
		unix.Read(fd, buf[:])
		gotMode = mode
		fired.Add(1)
	}); err != nil {
		t.Fatal("RegisterSocket failed:", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		unix.Write(writeFd, []byte("x"))
	}()

	if status := loop.ProcessSocket(readFd, 5*time.Second); status != Success {
		t.Fatalf("ProcessSocket() = %v, want Success", status)
	}
	if n := fired.Load(); n != 1 {
		t.Fatalf("callback ran %d times, want 1", n)
	}
	if gotMode&SocketRead == 0 {
		t.Errorf("callback mode = %v, want SocketRead set", gotMode)
	}
}

func TestProcessSocket_Timeout(t *testing.T) {
	loop := newOwnedLoop(t)
	readFd, _ := testSocketpair(t)

	if err := loop.RegisterSocket(readFd, SocketRead, func(int, Mode) {}); err != nil {
		t.Fatal("RegisterSocket failed:", err)
	}

	const bound = 50 * time.Millisecond
	start := time.Now()
	status := loop.ProcessSocket(readFd, bound)
	elapsed := time.Since(start)

	if status != Timeout {
		t.Fatalf("ProcessSocket() = %v, want Timeout", status)
	}
	if elapsed < bound-5*time.Millisecond {
		t.Errorf("returned after %v, want at least %v", elapsed, bound)
	}
}

func TestProcessSocket_ZeroTimeout(t *testing.T) {
	loop := newOwnedLoop(t)
	readFd, writeFd := testSocketpair(t)

	var fired atomic.Int32
	if err := loop.RegisterSocket(readFd, SocketRead, func(fd int, mode Mode) {
		var buf [16]byte
		unix.Read(fd, buf[:])
		fired.Add(1)
	}); err != nil {
		t.Fatal("RegisterSocket failed:", err)
	}

	// Nothing buffered: a zero timeout polls once and reports Timeout.
	if status := loop.ProcessSocket(readFd, 0); status != Timeout {
		t.Fatalf("ProcessSocket(0) on idle fd = %v, want Timeout", status)
	}

	// Buffered data dispatches without blocking.
	if _, err := unix.Write(writeFd, []byte("x")); err != nil {
		t.Fatal("write failed:", err)
	}
	if status := loop.ProcessSocket(readFd, 0); status != Success {
		t.Fatalf("ProcessSocket(0) with data = %v, want Success", status)
	}
	if n := fired.Load(); n != 1 {
		t.Errorf("callback ran %d times, want 1", n)
	}
}

func TestProcessSocket_NotRegistered(t *testing.T) {
	loop := newOwnedLoop(t)
	readFd, _ := testPipe(t)

	if status := loop.ProcessSocket(readFd, time.Second); status != GeneralError {
		t.Fatalf("ProcessSocket on unregistered fd = %v, want GeneralError", status)
	}
}

// Posted events keep executing while ProcessSocket waits on its one
// descriptor.
func TestProcessSocket_ExecutesPostedEvents(t *testing.T) {
	loop := newOwnedLoop(t)
	readFd, writeFd := testSocketpair(t)

	if err := loop.RegisterSocket(readFd, SocketRead, func(fd int, mode Mode) {
		var buf [16]byte
		unix.Read(fd, buf[:])
	}); err != nil {
		t.Fatal("RegisterSocket failed:", err)
	}

	var posted atomic.Int32
	go func() {
		loop.PostFunc(func() { posted.Add(1) })
		time.Sleep(50 * time.Millisecond)
		loop.PostFunc(func() { posted.Add(1) })
		time.Sleep(50 * time.Millisecond)
		unix.Write(writeFd, []byte("x"))
	}()

	if status := loop.ProcessSocket(readFd, 5*time.Second); status != Success {
		t.Fatalf("ProcessSocket() = %v, want Success", status)
	}
	if n := posted.Load(); n != 2 {
		t.Errorf("%d posted events executed during the wait, want 2", n)
	}
}

// A quit request ends the wait with Success but stays pending for the
// enclosing run.
func TestProcessSocket_QuitPreserved(t *testing.T) {
	loop := newOwnedLoop(t)
	readFd, _ := testSocketpair(t)

	var fired atomic.Int32
	if err := loop.RegisterSocket(readFd, SocketRead, func(int, Mode) { fired.Add(1) }); err != nil {
		t.Fatal("RegisterSocket failed:", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		loop.Quit(5)
	}()

	if status := loop.ProcessSocket(readFd, 5*time.Second); status != Success {
		t.Fatalf("ProcessSocket() = %v, want Success on quit", status)
	}
	if n := fired.Load(); n != 0 {
		t.Errorf("callback ran %d times on quit, want 0", n)
	}

	// The request was not consumed: a following run honors it immediately.
	if status := loop.Run(-1); status != Success {
		t.Fatalf("Run() after preserved quit = %v, want Success", status)
	}
	if code := loop.ExitCode(); code != 5 {
		t.Errorf("ExitCode() = %d, want 5", code)
	}
}

func TestProcessSocket_OneShotConsumes(t *testing.T) {
	loop := newOwnedLoop(t)
	readFd, writeFd := testSocketpair(t)

	if err := loop.RegisterSocket(readFd, SocketRead|SocketOneShot, func(fd int, mode Mode) {
		var buf [16]byte
		unix.Read(fd, buf[:])
	}); err != nil {
		t.Fatal("RegisterSocket failed:", err)
	}

	if _, err := unix.Write(writeFd, []byte("x")); err != nil {
		t.Fatal("write failed:", err)
	}
	if status := loop.ProcessSocket(readFd, time.Second); status != Success {
		t.Fatalf("first ProcessSocket() = %v, want Success", status)
	}
	if status := loop.ProcessSocket(readFd, time.Second); status != GeneralError {
		t.Fatalf("second ProcessSocket() = %v, want GeneralError after one-shot", status)
	}
}

// ProcessSocket nests inside Run: a callback can wait synchronously for one
// descriptor while the loop is running.
func TestProcessSocket_NestedInRun(t *testing.T) {
	loop := newOwnedLoop(t)
	aRead, aWrite := testSocketpair(t)
	bRead, bWrite := testSocketpair(t)

	var nested Status
	var bFired atomic.Int32
	if err := loop.RegisterSocket(bRead, SocketRead, func(fd int, mode Mode) {
		var buf [16]byte
		unix.Read(fd, buf[:])
		bFired.Add(1)
	}); err != nil {
		t.Fatal("RegisterSocket b failed:", err)
	}
	if err := loop.RegisterSocket(aRead, SocketRead|SocketOneShot, func(fd int, mode Mode) {
		var buf [16]byte
		unix.Read(fd, buf[:])
		nested = loop.ProcessSocket(bRead, 5*time.Second)
		loop.Quit(0)
	}); err != nil {
		t.Fatal("RegisterSocket a failed:", err)
	}

	go func() {
		unix.Write(aWrite, []byte("x"))
		time.Sleep(50 * time.Millisecond)
		unix.Write(bWrite, []byte("y"))
	}()

	if status := loop.Run(10 * time.Second); status != Success {
		t.Fatalf("Run() = %v, want Success", status)
	}
	if nested != Success {
		t.Errorf("nested ProcessSocket() = %v, want Success", nested)
	}
	if n := bFired.Load(); n != 1 {
		t.Errorf("nested callback ran %d times, want 1", n)
	}
}

func TestProcessSocket_WrongGoroutinePanics(t *testing.T) {
	r := startLoop(t, 0)
	readFd, _ := testPipe(t)

	defer func() {
		v := recover()
		err, ok := v.(error)
		if !ok || !errors.Is(err, ErrWrongThread) {
			t.Fatalf("cross-goroutine ProcessSocket panicked with %v, want ErrWrongThread", v)
		}
	}()
	r.loop.ProcessSocket(readFd, 0)
}
