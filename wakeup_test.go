//go:build linux || darwin

package reactor

import (
	"encoding/binary"
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func newWakeFd(t *testing.T) (int, int) {
	t.Helper()
	rfd, wfd, err := createWakeFd()
	if err != nil {
		t.Fatal("createWakeFd failed:", err)
	}
	t.Cleanup(func() {
		unix.Close(rfd)
		if wfd != rfd {
			unix.Close(wfd)
		}
	})
	return rfd, wfd
}

func TestCreateWakeFd_NonBlockingWhenEmpty(t *testing.T) {
	rfd, _ := newWakeFd(t)

	var buf [8]byte
	n, err := unix.Read(rfd, buf[:])
	if n > 0 {
		t.Fatalf("read %d bytes from fresh wake channel, want none", n)
	}
	if !errors.Is(err, unix.EAGAIN) {
		t.Fatalf("read on empty wake channel = %v, want EAGAIN", err)
	}
}

func TestCreateWakeFd_Roundtrip(t *testing.T) {
	rfd, wfd := newWakeFd(t)

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(wfd, buf[:]); err != nil {
		t.Fatal("write failed:", err)
	}

	var out [8]byte
	n, err := unix.Read(rfd, out[:])
	if err != nil {
		t.Fatal("read failed:", err)
	}
	if n == 0 {
		t.Fatal("read no bytes after wake write")
	}

	// Drained: a second read reports empty again.
	n, err = unix.Read(rfd, out[:])
	if n > 0 {
		t.Fatalf("read %d bytes after drain, want none", n)
	}
	if !errors.Is(err, unix.EAGAIN) {
		t.Fatalf("read after drain = %v, want EAGAIN", err)
	}
}

// Stacked wakes collapse into a single drain; the channel carries "wake
// pending", not a count to obey.
func TestCreateWakeFd_CoalescesWrites(t *testing.T) {
	rfd, wfd := newWakeFd(t)

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for i := 0; i < 3; i++ {
		if _, err := unix.Write(wfd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
			t.Fatal("write failed:", err)
		}
	}

	var out [8]byte
	for {
		n, err := unix.Read(rfd, out[:])
		if n <= 0 || err != nil {
			break
		}
	}

	n, err := unix.Read(rfd, out[:])
	if n > 0 || !errors.Is(err, unix.EAGAIN) {
		t.Fatalf("wake channel not empty after drain loop: n=%d err=%v", n, err)
	}
}

func TestCreateWakeFd_PollableForRead(t *testing.T) {
	rfd, wfd := newWakeFd(t)

	fds := []unix.PollFd{{Fd: int32(rfd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		t.Fatal("poll failed:", err)
	}
	if n != 0 {
		t.Fatalf("fresh wake channel polled ready (n=%d)", n)
	}

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(wfd, buf[:]); err != nil {
		t.Fatal("write failed:", err)
	}

	fds[0].Revents = 0
	n, err = unix.Poll(fds, 100)
	if err != nil {
		t.Fatal("poll failed:", err)
	}
	if n != 1 || fds[0].Revents&unix.POLLIN == 0 {
		t.Fatalf("wake channel not readable after write: n=%d revents=%#x", n, fds[0].Revents)
	}
}
