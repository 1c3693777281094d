package reactor

import "io"

// Event is a single-shot unit of deferred work. An Event is constructed by
// the posting goroutine, handed to a Loop via Post, and executed exactly
// once on that loop's owning goroutine. The loop drops its reference after
// Exec returns; events are not reusable.
type Event interface {
	Exec()
}

// eventFunc adapts a closure to the Event interface.
type eventFunc struct {
	fn func()
}

func (e *eventFunc) Exec() { e.fn() }

// deleteLaterEvent closes a resource on the owning goroutine.
type deleteLaterEvent struct {
	loop *Loop
	c    io.Closer
}

func (e *deleteLaterEvent) Exec() {
	if err := e.c.Close(); err != nil {
		e.loop.log.Warning().Err(err).Log("deferred close failed")
	}
}

// DeleteLater schedules c to be closed on the current loop's owning
// goroutine, resolving the loop via Current. When no loop is resolvable the
// request is logged and dropped; c is not closed on the calling goroutine.
func DeleteLater(c io.Closer) {
	loop := Current()
	if loop == nil {
		defaultLogger().Err().Log("no event loop")
		return
	}
	loop.Post(&deleteLaterEvent{loop: loop, c: c})
}
