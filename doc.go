// Package reactor provides a single-goroutine event dispatcher multiplexing
// socket readiness, timers, and cross-goroutine deferred calls over one
// native poller.
//
// # Architecture
//
// A [Loop] owns a platform multiplexer, a wake channel, and a registry of
// socket and timer registrations. Every callback is dispatched on the
// goroutine that initialized the loop; any goroutine may register sockets
// ([Loop.RegisterSocket]), schedule timers ([Loop.RegisterTimer]), or post
// deferred calls ([Loop.Post]), and the loop is woken so those take effect
// immediately. One loop per process may claim the main role via
// [MainEventLoop]; [Main], [Current], and [DeleteLater] resolve it without a
// handle.
//
// Within one dispatch batch the loop drains readiness events, then expired
// timers in deadline order, then posted events in posting order.
//
// # Platform Support
//
// I/O polling is implemented using platform-native mechanisms:
//   - Linux: epoll, with an eventfd wake channel
//   - macOS: kqueue, with a pipe wake channel
//
// # Thread Safety
//
//   - [Loop.Run] and [Loop.ProcessSocket] must be called on the goroutine
//     that called [Loop.Init], and panic otherwise
//   - Registration, posting, and [Loop.Quit] are safe from any goroutine
//   - Callbacks only ever execute on the owning goroutine, with no loop
//     lock held, so they may freely re-enter registration methods
//
// # Usage
//
//	loop, err := reactor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := loop.Init(reactor.MainEventLoop | reactor.EnableInterruptHandler); err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	loop.RegisterTimer(func(id int) {
//	    fmt.Println("tick")
//	}, 100*time.Millisecond, 0)
//
//	if status := loop.Run(-1); status != reactor.Success {
//	    log.Fatalf("run: %v", status)
//	}
//
// # Errors
//
// Environment failures (multiplexer or wake-channel setup, registration
// syscalls) are returned as wrapped sentinel errors such as
// [ErrMainLoopExists] and [ErrNotRegistered]. Contract violations (running
// a loop twice, posting a nil event, dispatching off-thread) panic with
// sentinel values such as [ErrAlreadyRunning] and [ErrWrongThread].
// Callback panics are recovered, logged, and never unwind the loop.
package reactor
