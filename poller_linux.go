//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller wraps an epoll instance (level-triggered). Control operations are
// safe from any goroutine relative to a concurrent wait; the kernel
// serializes epoll_ctl against epoll_wait.
type poller struct {
	epfd     int
	eventBuf [maxPollEvents]unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &poller{epfd: epfd}, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

func (p *poller) add(fd int, mode Mode) error {
	ev := unix.EpollEvent{Events: modeToEpoll(mode), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *poller) mod(fd int, mode Mode) error {
	ev := unix.EpollEvent{Events: modeToEpoll(mode), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *poller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks up to timeoutMs (-1 for no bound) and appends one entry per
// ready descriptor. An interrupted wait yields an empty batch, not an error.
func (p *poller) wait(timeoutMs int, ready []readyEvent) ([]readyEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return ready, nil
		}
		return ready, err
	}
	for i := 0; i < n; i++ {
		ready = append(ready, readyEvent{
			fd:   int(p.eventBuf[i].Fd),
			mode: epollToMode(p.eventBuf[i].Events),
		})
	}
	return ready, nil
}

func modeToEpoll(mode Mode) uint32 {
	var events uint32
	if mode&SocketRead != 0 {
		events |= unix.EPOLLIN
	}
	if mode&SocketWrite != 0 {
		events |= unix.EPOLLOUT
	}
	// Error and hangup conditions are always reported; no interest bits.
	return events
}

func epollToMode(events uint32) Mode {
	var mode Mode
	if events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		mode |= SocketRead
	}
	if events&unix.EPOLLOUT != 0 {
		mode |= SocketWrite
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mode |= SocketError
	}
	return mode
}
