package reactor

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

var loopIDCounter atomic.Uint64

// Loop is a single-goroutine event dispatcher multiplexing socket readiness,
// timers, and cross-goroutine deferred calls.
//
// A Loop is created with New, bound to its owning goroutine by Init, and
// driven by Run (or, for a single descriptor, ProcessSocket) on that same
// goroutine. Every callback the loop dispatches executes on the owning
// goroutine; registration and posting entry points may be called from any
// goroutine. Close releases the loop's descriptors and must not be called
// concurrently with Run.
type Loop struct {
	_ [0]func() // prevents comparison, discourages copying

	log *logiface.Logger[logiface.Event]
	id  uint64

	// mu guards the registration state below it. It is held across poller
	// registration syscalls, but never across a user callback.
	mu          sync.Mutex
	reg         *registry
	initialized bool
	closed      bool
	quit        bool
	exitCode    int
	flags       Flag

	poller    *poller
	wakeRead  int
	wakeWrite int

	gid     atomic.Uint64
	running atomic.Bool

	sigCh   chan os.Signal
	sigDone chan struct{}

	metrics loopMetrics
}

// New creates an uninitialized Loop. The returned loop dispatches nothing
// until Init succeeds.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		log:       cfg.logger,
		id:        loopIDCounter.Add(1),
		reg:       newRegistry(),
		wakeRead:  -1,
		wakeWrite: -1,
	}
	l.metrics.enabled = cfg.metrics
	return l, nil
}

// Init acquires the loop's multiplexer and wake channel and binds the loop
// to the calling goroutine. With MainEventLoop it also claims the
// process-wide main-loop role, failing with ErrMainLoopExists while another
// live loop holds it. With EnableInterruptHandler an interrupt signal is
// translated into Quit(0).
//
// Environment failures leave the loop uninitialized and safe to retry.
// Calling Init twice returns ErrAlreadyInitialized.
func (l *Loop) Init(flags Flag) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.initialized {
		return ErrAlreadyInitialized
	}

	if flags&MainEventLoop != 0 {
		if err := installMainLoop(l); err != nil {
			return err
		}
	}
	undoMain := func() {
		if flags&MainEventLoop != 0 {
			vacateMainLoop(l)
		}
	}

	p, err := newPoller()
	if err != nil {
		undoMain()
		return err
	}
	r, w, err := createWakeFd()
	if err != nil {
		_ = p.close()
		undoMain()
		return fmt.Errorf("reactor: wake channel: %w", err)
	}
	if err := p.add(r, SocketRead); err != nil {
		_ = unix.Close(r)
		if w != r {
			_ = unix.Close(w)
		}
		_ = p.close()
		undoMain()
		return fmt.Errorf("reactor: wake channel registration: %w", err)
	}

	l.flags = flags
	l.poller = p
	l.wakeRead, l.wakeWrite = r, w
	l.gid.Store(getGoroutineID())
	l.initialized = true
	registerLoopGoroutine(l.gid.Load(), l)
	if flags&EnableInterruptHandler != 0 {
		l.installInterruptHandler()
	}

	l.log.Debug().
		Uint64("loop", l.id).
		Uint64("goroutine", l.gid.Load()).
		Bool("main", flags&MainEventLoop != 0).
		Log("loop initialized")
	return nil
}

// Run dispatches ready sockets, expired timers, and posted events until
// Quit is requested (Success) or timeout elapses (Timeout). A negative
// timeout runs until Quit; a zero timeout performs a single non-blocking
// dispatch round before reporting Timeout. A multiplexer failure ends the
// run with GeneralError.
//
// Run must be called on the goroutine that initialized the loop and panics
// with ErrWrongThread otherwise, with ErrAlreadyRunning when the loop is
// already running, and with ErrNotInitialized or ErrClosed for the
// corresponding states. A pending Quit is consumed even when no dispatch
// occurs.
func (l *Loop) Run(timeout time.Duration) Status {
	l.checkOwner()
	if !l.running.CompareAndSwap(false, true) {
		panic(ErrAlreadyRunning)
	}
	defer l.running.Store(false)

	// Dispatch keeps callback execution on one OS thread for the duration
	// of the run, for callers that care about thread-local state.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	l.log.Trace().Uint64("loop", l.id).Dur("timeout", timeout).Log("run started")

	ready := make([]readyEvent, 0, maxPollEvents)
	first := true
	for {
		if l.takeQuit() {
			l.log.Trace().Uint64("loop", l.id).Log("run finished")
			return Success
		}

		pollMs, expired := l.pollBound(deadline)
		if expired && !first {
			return Timeout
		}
		first = false

		var err error
		ready, err = l.poller.wait(pollMs, ready[:0])
		if err != nil {
			l.log.Err().Err(err).Uint64("loop", l.id).Log("poll failed")
			return GeneralError
		}

		l.dispatchSockets(ready)
		l.dispatchTimers(time.Now())
		l.dispatchPending()
		l.metrics.add(&l.metrics.batches, 1)
	}
}

// pollBound computes the next poll timeout in whole milliseconds: the
// earlier of the run deadline and the nearest timer deadline, rounded up so
// deadlines are never undershot. -1 means wait indefinitely. The second
// return reports that the run deadline has already passed, in which case the
// bound is zero (a non-blocking poll).
func (l *Loop) pollBound(deadline time.Time) (int, bool) {
	now := time.Now()

	limit := time.Duration(-1)
	if !deadline.IsZero() {
		limit = deadline.Sub(now)
		if limit <= 0 {
			return 0, true
		}
	}

	l.mu.Lock()
	next, ok := l.reg.nextDeadline()
	l.mu.Unlock()
	if ok {
		d := next.Sub(now)
		if d <= 0 {
			return 0, false
		}
		if limit < 0 || d < limit {
			limit = d
		}
	}

	if limit < 0 {
		return -1, false
	}
	return ceilMs(limit), false
}

func ceilMs(d time.Duration) int {
	if d >= math.MaxInt32*time.Millisecond {
		return math.MaxInt32
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms < 1 {
		return 1
	}
	return int(ms)
}

// takeQuit consumes a pending quit request.
func (l *Loop) takeQuit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.quit {
		return false
	}
	l.quit = false
	return true
}

func (l *Loop) dispatchSockets(ready []readyEvent) {
	for _, ev := range ready {
		if ev.fd == l.wakeRead {
			l.drainWake()
			continue
		}

		// Re-check the registration: an earlier callback in this batch may
		// have unregistered or replaced it.
		l.mu.Lock()
		e := l.reg.socket(ev.fd)
		if e == nil {
			l.mu.Unlock()
			continue
		}
		cb := e.socketCB
		if e.mode&SocketOneShot != 0 {
			l.reg.removeSocket(ev.fd)
			if err := l.poller.del(ev.fd); err != nil {
				l.log.Debug().Err(err).Int("fd", ev.fd).Uint64("loop", l.id).
					Log("one-shot removal failed")
			}
		}
		l.mu.Unlock()

		l.metrics.add(&l.metrics.socketEvents, 1)
		l.invokeSocket(cb, ev.fd, ev.mode)
	}
}

func (l *Loop) dispatchTimers(now time.Time) {
	l.mu.Lock()
	expired := l.reg.expiredTimers(now)
	l.mu.Unlock()

	for _, e := range expired {
		// Re-check liveness: an earlier callback in this batch may have
		// unregistered this timer.
		l.mu.Lock()
		if l.reg.timer(e.id) != e {
			l.mu.Unlock()
			continue
		}
		cb := e.timerCB
		if e.flags&TimerSingleShot != 0 {
			l.reg.removeTimer(e.id)
		}
		l.mu.Unlock()

		l.metrics.add(&l.metrics.timersFired, 1)
		l.invokeTimer(cb, e.id)
	}
}

func (l *Loop) dispatchPending() {
	l.mu.Lock()
	events := l.reg.drainPending()
	l.mu.Unlock()

	for _, ev := range events {
		l.metrics.add(&l.metrics.eventsExecuted, 1)
		l.invokeEvent(ev)
	}
}

func (l *Loop) invokeSocket(cb SocketCallback, fd int, mode Mode) {
	defer l.recoverCallback("socket callback")
	cb(fd, mode)
}

func (l *Loop) invokeTimer(cb TimerCallback, id int) {
	defer l.recoverCallback("timer callback")
	cb(id)
}

func (l *Loop) invokeEvent(ev Event) {
	defer l.recoverCallback("posted event")
	ev.Exec()
}

// recoverCallback keeps a panicking callback from unwinding through the
// dispatch loop.
func (l *Loop) recoverCallback(what string) {
	if r := recover(); r != nil {
		l.metrics.add(&l.metrics.callbackPanics, 1)
		l.log.Err().
			Uint64("loop", l.id).
			Field("panic", r).
			Str("stack", string(debug.Stack())).
			Log(what + " panicked")
	}
}

// drainWake empties the wake channel so the next poll blocks again.
func (l *Loop) drainWake() {
	var buf [8]byte
	for {
		n, err := unix.Read(l.wakeRead, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// wakeup nudges a poll in progress. EAGAIN means a wake is already pending,
// which is as good as delivered.
func (l *Loop) wakeup() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(l.wakeWrite, buf[:]); err != nil && err != unix.EAGAIN {
		l.log.Debug().Err(err).Uint64("loop", l.id).Log("wakeup write failed")
	}
	l.metrics.add(&l.metrics.wakeups, 1)
}

// Quit requests that the current (or next) Run return Success, recording
// code for ExitCode. Safe from any goroutine, including loop callbacks and
// the interrupt watcher.
func (l *Loop) Quit(code int) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.quit = true
	l.exitCode = code
	initialized := l.initialized
	l.mu.Unlock()
	if initialized {
		l.wakeup()
	}
}

// ExitCode returns the code recorded by the most recent Quit.
func (l *Loop) ExitCode() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exitCode
}

// IsRunning reports whether Run is currently dispatching.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Flags returns the flags the loop was initialized with.
func (l *Loop) Flags() Flag {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flags
}

func (l *Loop) ownerGID() uint64 {
	return l.gid.Load()
}

// Post queues e for execution on the loop's owning goroutine and wakes the
// loop. Events execute in posting order, after socket and timer dispatch of
// the batch in which they are observed. Safe from any goroutine. Posting to
// a closed loop drops the event. Post panics with ErrNilEvent when e is nil.
func (l *Loop) Post(e Event) {
	if e == nil {
		panic(ErrNilEvent)
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.log.Debug().Uint64("loop", l.id).Log("post on closed loop dropped")
		return
	}
	initialized := l.initialized
	l.reg.pending.Add(e)
	l.mu.Unlock()

	l.metrics.add(&l.metrics.eventsPosted, 1)
	if initialized {
		l.wakeup()
	}
}

// PostFunc is Post for a bare closure.
func (l *Loop) PostFunc(fn func()) {
	if fn == nil {
		panic(ErrNilEvent)
	}
	l.Post(&eventFunc{fn: fn})
}

// RegisterSocket registers fd with the loop's multiplexer, replacing any
// existing registration for the same descriptor. The callback runs on the
// loop's owning goroutine with the observed ready modes; error conditions
// are reported regardless of mode. With SocketOneShot the registration is
// removed immediately before its first dispatch.
//
// Safe from any goroutine. Errors are environment failures; a nil callback
// panics with ErrNilCallback.
func (l *Loop) RegisterSocket(fd int, mode Mode, cb SocketCallback) error {
	if cb == nil {
		panic(ErrNilCallback)
	}
	if fd < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDescriptor, fd)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if !l.initialized {
		return ErrNotInitialized
	}

	var oldMode Mode
	var oldCB SocketCallback
	if old := l.reg.socket(fd); old != nil {
		oldMode, oldCB = old.mode, old.socketCB
	}

	e, replaced := l.reg.putSocket(fd, mode, cb)
	var err error
	if replaced {
		err = l.poller.mod(fd, mode)
	} else {
		err = l.poller.add(fd, mode)
	}
	if err != nil {
		// A failed modify leaves the kernel registration untouched, so the
		// previous entry is restored rather than dropped.
		if replaced {
			e.mode, e.socketCB = oldMode, oldCB
		} else {
			l.reg.removeSocket(fd)
		}
		return fmt.Errorf("reactor: register socket %d: %w", fd, err)
	}
	return nil
}

// UpdateSocket replaces the interest modes of an existing registration,
// keeping its callback. Returns ErrNotRegistered when fd has no live
// registration. Safe from any goroutine.
func (l *Loop) UpdateSocket(fd int, mode Mode) error {
	if fd < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDescriptor, fd)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if !l.initialized {
		return ErrNotInitialized
	}

	e := l.reg.socket(fd)
	if e == nil {
		return fmt.Errorf("%w: fd %d", ErrNotRegistered, fd)
	}
	old := e.mode
	e.mode = mode
	if err := l.poller.mod(fd, mode); err != nil {
		e.mode = old
		return fmt.Errorf("reactor: update socket %d: %w", fd, err)
	}
	return nil
}

// UnregisterSocket removes fd's registration. Unregistering a descriptor
// that is not registered is a no-op; the call never fails. Safe from any
// goroutine. A registration removed mid-batch suppresses its pending
// dispatch.
func (l *Loop) UnregisterSocket(fd int) {
	if fd < 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.initialized {
		return
	}
	if l.reg.removeSocket(fd) {
		if err := l.poller.del(fd); err != nil {
			l.log.Debug().Err(err).Int("fd", fd).Uint64("loop", l.id).
				Log("socket removal failed")
		}
	}
}

// RegisterTimer schedules cb to fire after interval, and again every
// interval thereafter unless flags includes TimerSingleShot. Returns the
// timer's id, unique for the lifetime of the loop. A non-positive interval
// fires on the next dispatch round.
//
// Safe from any goroutine; the loop is woken so a poll in progress adopts
// the new deadline. Panics with ErrNilCallback, ErrClosed, or
// ErrNotInitialized on contract violations.
func (l *Loop) RegisterTimer(cb TimerCallback, interval time.Duration, flags TimerFlag) int {
	if cb == nil {
		panic(ErrNilCallback)
	}
	if interval < 0 {
		interval = 0
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		panic(ErrClosed)
	}
	if !l.initialized {
		l.mu.Unlock()
		panic(ErrNotInitialized)
	}
	e := l.reg.putTimer(cb, interval, flags, time.Now())
	l.mu.Unlock()

	l.wakeup()
	return e.id
}

// UnregisterTimer cancels the timer with the given id. Unknown, elapsed,
// and already-cancelled ids are no-ops; the call never fails. Safe from any
// goroutine. A timer cancelled mid-batch suppresses its pending dispatch.
func (l *Loop) UnregisterTimer(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reg.removeTimer(id)
}

// ProcessSocket blocks until the registered descriptor fd is ready,
// dispatches its callback once, and returns Success. While waiting it
// remains responsive to posted events and to Quit: a quit request returns
// Success without dispatching fd and without consuming the request, so an
// enclosing Run observes it too. Returns GeneralError when fd has no live
// registration, Timeout when the timeout elapses first (zero polls once
// without blocking, negative waits indefinitely).
//
// Must be called on the owning goroutine; panics as Run does. Unlike Run
// it may be called from a callback during a run, nesting a synchronous
// single-descriptor wait inside normal dispatch; other registrations stay
// parked until the enclosing run resumes.
func (l *Loop) ProcessSocket(fd int, timeout time.Duration) Status {
	l.checkOwner()

	l.mu.Lock()
	e := l.reg.socket(fd)
	var interest Mode
	if e != nil {
		interest = e.mode
	}
	l.mu.Unlock()
	if e == nil {
		l.log.Debug().Int("fd", fd).Uint64("loop", l.id).
			Log("process socket: not registered")
		return GeneralError
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	fds := []unix.PollFd{
		{Fd: int32(fd), Events: modeToPoll(interest)},
		{Fd: int32(l.wakeRead), Events: unix.POLLIN},
	}
	first := true
	for {
		l.mu.Lock()
		quit := l.quit
		l.mu.Unlock()
		if quit {
			return Success
		}

		pollMs := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				if !first {
					return Timeout
				}
				pollMs = 0
			} else {
				pollMs = ceilMs(remaining)
			}
		}
		first = false

		fds[0].Revents, fds[1].Revents = 0, 0
		n, err := unix.Poll(fds, pollMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			l.log.Err().Err(err).Int("fd", fd).Uint64("loop", l.id).Log("poll failed")
			return GeneralError
		}
		if n == 0 {
			continue
		}

		if fds[1].Revents != 0 {
			l.drainWake()
			l.dispatchPending()
			continue
		}

		mode := pollToMode(fds[0].Revents)

		l.mu.Lock()
		live := l.reg.socket(fd)
		if live == nil {
			l.mu.Unlock()
			l.log.Debug().Int("fd", fd).Uint64("loop", l.id).
				Log("process socket: registration removed while waiting")
			return GeneralError
		}
		cb := live.socketCB
		if live.mode&SocketOneShot != 0 {
			l.reg.removeSocket(fd)
			if err := l.poller.del(fd); err != nil {
				l.log.Debug().Err(err).Int("fd", fd).Uint64("loop", l.id).
					Log("one-shot removal failed")
			}
		}
		l.mu.Unlock()

		l.metrics.add(&l.metrics.socketEvents, 1)
		l.invokeSocket(cb, fd, mode)
		return Success
	}
}

// Close releases the loop's multiplexer and wake channel, discards every
// registration and queued event, relinquishes the main-loop role if held,
// and stops the interrupt watcher. Idempotent. Close must not be called
// while Run or ProcessSocket is dispatching.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	initialized := l.initialized
	l.initialized = false
	l.reg.discard()
	gid := l.gid.Load()
	l.mu.Unlock()

	if !initialized {
		return nil
	}

	l.stopInterruptHandler()
	vacateMainLoop(l)
	unregisterLoopGoroutine(gid, l)

	var firstErr error
	if err := l.poller.close(); err != nil {
		firstErr = err
	}
	if err := unix.Close(l.wakeRead); err != nil && firstErr == nil {
		firstErr = err
	}
	if l.wakeWrite != l.wakeRead {
		if err := unix.Close(l.wakeWrite); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	l.log.Debug().Uint64("loop", l.id).Log("loop closed")
	return firstErr
}

// checkOwner enforces the dispatch-side calling contract.
func (l *Loop) checkOwner() {
	l.mu.Lock()
	closed, initialized := l.closed, l.initialized
	l.mu.Unlock()
	if closed {
		panic(ErrClosed)
	}
	if !initialized {
		panic(ErrNotInitialized)
	}
	if l.gid.Load() != getGoroutineID() {
		panic(ErrWrongThread)
	}
}
