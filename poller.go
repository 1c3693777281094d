package reactor

import "golang.org/x/sys/unix"

// maxPollEvents bounds the number of readiness events consumed from the
// multiplexer in a single wait.
const maxPollEvents = 256

// readyEvent is one descriptor's coalesced readiness for a wait batch.
type readyEvent struct {
	fd   int
	mode Mode
}

// modeToPoll translates interest modes for poll(2), used by ProcessSocket's
// single-descriptor wait. Error conditions are always reported by the
// kernel and need no request bit.
func modeToPoll(mode Mode) int16 {
	var events int16
	if mode&SocketRead != 0 {
		events |= unix.POLLIN
	}
	if mode&SocketWrite != 0 {
		events |= unix.POLLOUT
	}
	return events
}

// pollToMode translates poll(2) revents into ready modes.
func pollToMode(revents int16) Mode {
	var mode Mode
	if revents&(unix.POLLIN|unix.POLLPRI) != 0 {
		mode |= SocketRead
	}
	if revents&unix.POLLOUT != 0 {
		mode |= SocketWrite
	}
	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		mode |= SocketError
	}
	return mode
}
