//go:build darwin

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// poller wraps a kqueue instance. Filters are registered level-triggered so
// readiness reporting matches the epoll backend. kqueue reports read and
// write readiness as separate events; wait coalesces them per descriptor so
// callbacks observe one invocation with the full ready-mode bitmask.
type poller struct {
	kq       int
	eventBuf [maxPollEvents]unix.Kevent_t
}

func newPoller() (*poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("reactor: kqueue: %w", err)
	}
	unix.CloseOnExec(kq)
	return &poller{kq: kq}, nil
}

func (p *poller) close() error {
	return unix.Close(p.kq)
}

func (p *poller) add(fd int, mode Mode) error {
	return p.applyFilters(fd, mode)
}

func (p *poller) mod(fd int, mode Mode) error {
	p.deleteFilters(fd)
	return p.applyFilters(fd, mode)
}

func (p *poller) del(fd int) error {
	p.deleteFilters(fd)
	return nil
}

func (p *poller) applyFilters(fd int, mode Mode) error {
	changes := make([]unix.Kevent_t, 0, 2)
	if mode&SocketRead != 0 || mode == SocketError {
		// An error-only registration still needs a filter to surface
		// EV_EOF; read is the conventional carrier.
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  unix.EV_ADD,
		})
	}
	if mode&SocketWrite != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  unix.EV_ADD,
		})
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return err
	}
	return nil
}

// deleteFilters removes both filters one change at a time; removing a
// filter that was never added reports ENOENT, which is expected.
func (p *poller) deleteFilters(fd int) {
	for _, filter := range []int16{unix.EVFILT_READ, unix.EVFILT_WRITE} {
		change := []unix.Kevent_t{{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  unix.EV_DELETE,
		}}
		_, _ = unix.Kevent(p.kq, change, nil, nil)
	}
}

// wait blocks up to timeoutMs (-1 for no bound) and appends one entry per
// ready descriptor, merging per-filter events by fd. An interrupted wait
// yields an empty batch, not an error.
func (p *poller) wait(timeoutMs int, ready []readyEvent) ([]readyEvent, error) {
	var tsp *unix.Timespec
	if timeoutMs >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMs) * int64(time.Millisecond))
		tsp = &ts
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], tsp)
	if err != nil {
		if err == unix.EINTR {
			return ready, nil
		}
		return ready, err
	}
	base := len(ready)
	for i := 0; i < n; i++ {
		ev := &p.eventBuf[i]
		fd := int(ev.Ident)
		mode := keventToMode(ev)
		merged := false
		for j := base; j < len(ready); j++ {
			if ready[j].fd == fd {
				ready[j].mode |= mode
				merged = true
				break
			}
		}
		if !merged {
			ready = append(ready, readyEvent{fd: fd, mode: mode})
		}
	}
	return ready, nil
}

func keventToMode(ev *unix.Kevent_t) Mode {
	var mode Mode
	switch ev.Filter {
	case unix.EVFILT_READ:
		mode |= SocketRead
	case unix.EVFILT_WRITE:
		mode |= SocketWrite
	}
	if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
		mode |= SocketError
	}
	return mode
}
