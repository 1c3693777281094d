package reactor

import "strings"

// Flag configures a Loop at Init time.
type Flag uint32

const (
	// MainEventLoop installs the loop as the process-wide main loop. At
	// most one loop may hold this role at a time; Init fails with
	// ErrMainLoopExists while another holder is alive.
	MainEventLoop Flag = 0x1
	// EnableInterruptHandler registers an interrupt-signal watcher that
	// requests Quit(0) on delivery.
	EnableInterruptHandler Flag = 0x2
)

// Mode is the socket interest and readiness bitmask.
type Mode uint32

const (
	// SocketRead requests readability notification.
	SocketRead Mode = 0x1
	// SocketWrite requests writability notification.
	SocketWrite Mode = 0x2
	// SocketOneShot removes the registration immediately before its first
	// callback, so the callback may re-register the descriptor.
	SocketOneShot Mode = 0x4
	// SocketError requests error-condition notification. Error conditions
	// are reported regardless of interest; the flag exists so callers can
	// express intent and match reported modes.
	SocketError Mode = 0x8
)

// String returns a pipe-separated list of the set mode bits.
func (m Mode) String() string {
	if m == 0 {
		return "None"
	}
	var parts []string
	if m&SocketRead != 0 {
		parts = append(parts, "Read")
	}
	if m&SocketWrite != 0 {
		parts = append(parts, "Write")
	}
	if m&SocketOneShot != 0 {
		parts = append(parts, "OneShot")
	}
	if m&SocketError != 0 {
		parts = append(parts, "Error")
	}
	return strings.Join(parts, "|")
}

// Status is the result bitmask returned by Run and ProcessSocket.
type Status uint32

const (
	// Success indicates the loop stopped because Quit was observed, or a
	// ProcessSocket wait dispatched its readiness batch.
	Success Status = 0x100
	// GeneralError indicates an unrecoverable multiplexer failure.
	GeneralError Status = 0x200
	// Timeout indicates the wait bound elapsed before anything else
	// stopped the call.
	Timeout Status = 0x400
)

// String returns a pipe-separated list of the set status bits.
func (s Status) String() string {
	if s == 0 {
		return "None"
	}
	var parts []string
	if s&Success != 0 {
		parts = append(parts, "Success")
	}
	if s&GeneralError != 0 {
		parts = append(parts, "GeneralError")
	}
	if s&Timeout != 0 {
		parts = append(parts, "Timeout")
	}
	return strings.Join(parts, "|")
}

// TimerFlag configures a timer registration.
type TimerFlag uint32

const (
	// TimerSingleShot makes the timer fire once and unregister itself.
	// Without it a timer reschedules after every expiry.
	TimerSingleShot TimerFlag = 0x1
)
