package reactor

import "errors"

// Standard errors.
var (
	// ErrAlreadyInitialized is returned by Init when the loop has already
	// been initialized.
	ErrAlreadyInitialized = errors.New("reactor: loop already initialized")

	// ErrMainLoopExists is returned by Init when MainEventLoop is requested
	// while another live loop holds the main-loop role.
	ErrMainLoopExists = errors.New("reactor: a main event loop already exists")

	// ErrNotInitialized is returned (or used as a panic value by Run) when
	// an operation requires a successfully initialized loop.
	ErrNotInitialized = errors.New("reactor: loop not initialized")

	// ErrAlreadyRunning is the panic value when Run is re-entered on a loop
	// that is already running.
	ErrAlreadyRunning = errors.New("reactor: loop is already running")

	// ErrWrongThread is the panic value when Run or ProcessSocket is called
	// from a goroutine other than the one that initialized the loop.
	ErrWrongThread = errors.New("reactor: not called from the owning goroutine")

	// ErrNilEvent is the panic value when Post is handed a nil event.
	ErrNilEvent = errors.New("reactor: nil event posted")

	// ErrNilCallback is the panic value when a socket or timer registration
	// is handed a nil callback.
	ErrNilCallback = errors.New("reactor: nil callback")

	// ErrInvalidDescriptor is returned for negative file descriptors.
	ErrInvalidDescriptor = errors.New("reactor: invalid file descriptor")

	// ErrNotRegistered is returned by UpdateSocket for descriptors without
	// a live registration.
	ErrNotRegistered = errors.New("reactor: descriptor not registered")

	// ErrClosed is returned by operations on a closed loop.
	ErrClosed = errors.New("reactor: loop closed")
)
