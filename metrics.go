package reactor

import "sync/atomic"

// Metrics is a point-in-time snapshot of loop activity counters.
type Metrics struct {
	// Batches is the number of completed dispatch batches.
	Batches uint64
	// SocketEvents is the number of socket callback invocations.
	SocketEvents uint64
	// TimersFired is the number of timer callback invocations.
	TimersFired uint64
	// EventsPosted is the number of deferred-call objects accepted by Post.
	EventsPosted uint64
	// EventsExecuted is the number of deferred-call objects executed.
	EventsExecuted uint64
	// Wakeups is the number of wake-channel signals sent.
	Wakeups uint64
	// CallbackPanics is the number of recovered callback panics.
	CallbackPanics uint64
}

// loopMetrics holds the live counters. Collection is optional; a disabled
// instance keeps every recording path to a single branch.
type loopMetrics struct {
	enabled bool

	batches        atomic.Uint64
	socketEvents   atomic.Uint64
	timersFired    atomic.Uint64
	eventsPosted   atomic.Uint64
	eventsExecuted atomic.Uint64
	wakeups        atomic.Uint64
	callbackPanics atomic.Uint64
}

func (m *loopMetrics) add(c *atomic.Uint64, n uint64) {
	if m.enabled {
		c.Add(n)
	}
}

func (m *loopMetrics) snapshot() Metrics {
	if !m.enabled {
		return Metrics{}
	}
	return Metrics{
		Batches:        m.batches.Load(),
		SocketEvents:   m.socketEvents.Load(),
		TimersFired:    m.timersFired.Load(),
		EventsPosted:   m.eventsPosted.Load(),
		EventsExecuted: m.eventsExecuted.Load(),
		Wakeups:        m.wakeups.Load(),
		CallbackPanics: m.callbackPanics.Load(),
	}
}

// Metrics returns a snapshot of the loop's activity counters. All zeros
// unless the loop was created with WithMetrics(true).
func (l *Loop) Metrics() Metrics {
	return l.metrics.snapshot()
}
