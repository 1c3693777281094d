package reactor

import (
	"errors"
	"strings"
	"testing"
)

// TestSentinelMessages pins the public error strings; callers match on these
// with errors.Is but the text still shows up in logs.
func TestSentinelMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrAlreadyInitialized", ErrAlreadyInitialized, "reactor: loop already initialized"},
		{"ErrMainLoopExists", ErrMainLoopExists, "reactor: a main event loop already exists"},
		{"ErrNotInitialized", ErrNotInitialized, "reactor: loop not initialized"},
		{"ErrAlreadyRunning", ErrAlreadyRunning, "reactor: loop is already running"},
		{"ErrWrongThread", ErrWrongThread, "reactor: not called from the owning goroutine"},
		{"ErrNilEvent", ErrNilEvent, "reactor: nil event posted"},
		{"ErrNilCallback", ErrNilCallback, "reactor: nil callback"},
		{"ErrInvalidDescriptor", ErrInvalidDescriptor, "reactor: invalid file descriptor"},
		{"ErrNotRegistered", ErrNotRegistered, "reactor: descriptor not registered"},
		{"ErrClosed", ErrClosed, "reactor: loop closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestSentinelsDistinct guards against two sentinels matching each other.
func TestSentinelsDistinct(t *testing.T) {
	all := []error{
		ErrAlreadyInitialized,
		ErrMainLoopExists,
		ErrNotInitialized,
		ErrAlreadyRunning,
		ErrWrongThread,
		ErrNilEvent,
		ErrNilCallback,
		ErrInvalidDescriptor,
		ErrNotRegistered,
		ErrClosed,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Errorf("errors.Is(%v, %v) = true, want false", a, b)
			}
		}
	}
}

// TestRegisterSocket_ErrorWrapping checks that operation errors wrap the
// sentinel and carry the offending descriptor.
func TestRegisterSocket_ErrorWrapping(t *testing.T) {
	r := startLoop(t, 0)

	err := r.loop.RegisterSocket(-7, SocketRead, func(int, Mode) {})
	if err == nil {
		t.Fatal("RegisterSocket(-7) = nil, want error")
	}
	if !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("errors.Is(err, ErrInvalidDescriptor) = false for %v", err)
	}
	if !strings.Contains(err.Error(), "-7") {
		t.Errorf("error %q does not name the descriptor", err)
	}
}

func TestUpdateSocket_ErrorWrapping(t *testing.T) {
	r := startLoop(t, 0)
	readFd, _ := testPipe(t)

	err := r.loop.UpdateSocket(readFd, SocketWrite)
	if err == nil {
		t.Fatal("UpdateSocket on unregistered fd = nil, want error")
	}
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("errors.Is(err, ErrNotRegistered) = false for %v", err)
	}
}
