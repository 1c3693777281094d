package reactor

import (
	"container/heap"
	"time"

	"github.com/eapache/queue"
)

// SocketCallback receives the descriptor and the full ready-mode bitmask
// for one readiness episode. Simultaneously ready modes are coalesced into
// a single invocation.
type SocketCallback func(fd int, mode Mode)

// TimerCallback receives the id returned by RegisterTimer.
type TimerCallback func(id int)

// fdToID maps descriptors into the registration id space. Socket ids are
// negated descriptors; generated timer ids are positive, so the two spaces
// cannot collide.
func fdToID(fd int) int { return -fd }

type entryKind uint8

const (
	entrySocket entryKind = iota + 1
	entryTimer
)

// registration is one registry entry, socket or timer. Entries are owned by
// the loop's registry and are only touched under the loop mutex.
type registration struct {
	kind entryKind
	id   int

	// socket fields
	fd       int
	mode     Mode
	socketCB SocketCallback

	// timer fields
	deadline time.Time
	interval time.Duration
	flags    TimerFlag
	seq      uint64
	timerCB  TimerCallback
}

// timerKey orders the heap by (deadline, registration sequence). Keys are
// not removed eagerly on unregister; stale keys are dropped when they
// surface with no matching registry entry.
type timerKey struct {
	deadline time.Time
	seq      uint64
	id       int
}

type timerHeap []timerKey

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(timerKey))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// registry holds every live socket and timer registration of one loop plus
// the pending deferred-call queue. It has no locking of its own; the owning
// Loop's mutex guards all access.
type registry struct {
	entries map[int]*registration
	timers  timerHeap
	pending *queue.Queue
	nextID  int
	nextSeq uint64
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[int]*registration),
		pending: queue.New(),
		nextID:  1,
	}
}

func (r *registry) generateID() int {
	id := r.nextID
	r.nextID++
	return id
}

// putSocket inserts or replaces the registration for fd. The second return
// reports whether an existing entry was replaced.
func (r *registry) putSocket(fd int, mode Mode, cb SocketCallback) (*registration, bool) {
	id := fdToID(fd)
	if e, ok := r.entries[id]; ok {
		e.mode = mode
		e.socketCB = cb
		return e, true
	}
	e := &registration{
		kind:     entrySocket,
		id:       id,
		fd:       fd,
		mode:     mode,
		socketCB: cb,
	}
	r.entries[id] = e
	return e, false
}

func (r *registry) socket(fd int) *registration {
	e := r.entries[fdToID(fd)]
	if e == nil || e.kind != entrySocket {
		return nil
	}
	return e
}

func (r *registry) removeSocket(fd int) bool {
	id := fdToID(fd)
	if e, ok := r.entries[id]; ok && e.kind == entrySocket {
		delete(r.entries, id)
		return true
	}
	return false
}

func (r *registry) putTimer(cb TimerCallback, interval time.Duration, flags TimerFlag, now time.Time) *registration {
	e := &registration{
		kind:     entryTimer,
		id:       r.generateID(),
		deadline: now.Add(interval),
		interval: interval,
		flags:    flags,
		seq:      r.nextSeq,
		timerCB:  cb,
	}
	r.nextSeq++
	r.entries[e.id] = e
	heap.Push(&r.timers, timerKey{deadline: e.deadline, seq: e.seq, id: e.id})
	return e
}

func (r *registry) timer(id int) *registration {
	e := r.entries[id]
	if e == nil || e.kind != entryTimer {
		return nil
	}
	return e
}

func (r *registry) removeTimer(id int) {
	if e, ok := r.entries[id]; ok && e.kind == entryTimer {
		delete(r.entries, id)
	}
}

// nextDeadline returns the earliest live timer deadline, discarding stale
// heap keys along the way.
func (r *registry) nextDeadline() (time.Time, bool) {
	for len(r.timers) > 0 {
		k := r.timers[0]
		if e, ok := r.entries[k.id]; ok && e.kind == entryTimer {
			return k.deadline, true
		}
		heap.Pop(&r.timers)
	}
	return time.Time{}, false
}

// expiredTimers pops every timer with deadline <= now, in (deadline, seq)
// order, and reschedules the repeating ones against the same now. Collection
// completes before any reschedule so a zero-interval repeating timer expires
// at most once per batch.
func (r *registry) expiredTimers(now time.Time) []*registration {
	var expired []*registration
	for len(r.timers) > 0 {
		k := r.timers[0]
		e, ok := r.entries[k.id]
		if !ok || e.kind != entryTimer {
			heap.Pop(&r.timers)
			continue
		}
		if k.deadline.After(now) {
			break
		}
		heap.Pop(&r.timers)
		expired = append(expired, e)
	}
	for _, e := range expired {
		if e.flags&TimerSingleShot == 0 {
			e.deadline = now.Add(e.interval)
			heap.Push(&r.timers, timerKey{deadline: e.deadline, seq: e.seq, id: e.id})
		}
	}
	return expired
}

// drainPending moves every queued event into a slice, preserving FIFO order.
func (r *registry) drainPending() []Event {
	n := r.pending.Length()
	if n == 0 {
		return nil
	}
	events := make([]Event, 0, n)
	for r.pending.Length() > 0 {
		events = append(events, r.pending.Remove().(Event))
	}
	return events
}

// discard drops every registration and queued event.
func (r *registry) discard() {
	clear(r.entries)
	r.timers = r.timers[:0]
	for r.pending.Length() > 0 {
		r.pending.Remove()
	}
}
