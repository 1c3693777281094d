//go:build linux

package shm

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CreateMode selects how New binds its key to a segment.
type CreateMode int

const (
	// None opens an existing segment and confers no ownership.
	None CreateMode = iota
	// Create creates the segment, failing if the key is already bound.
	Create
	// Recreate creates the segment, first removing any existing segment
	// bound to the key.
	Recreate
)

// AttachFlag controls the access mode of an attached mapping.
type AttachFlag int

const (
	Read  AttachFlag = 0x1
	Write AttachFlag = 0x2
)

// shmDest is SHM_DEST from include/uapi/linux/shm.h, which is not exported
// by x/sys/unix.
const shmDest = 0o1000

// Errors returned by this package, in addition to wrapped syscall errors.
var (
	// ErrInvalidKey is returned for negative keys.
	ErrInvalidKey = errors.New("shm: invalid key")

	// ErrClosed is returned by Attach after Close.
	ErrClosed = errors.New("shm: segment closed")
)

// Memory is a handle to one System V shared memory segment. The creating
// handle owns the segment and removes it on Close; opening handles only
// detach. A Memory is not safe for concurrent use.
type Memory struct {
	id    int
	key   int
	size  int
	owner bool
	data  []byte
}

// New creates or opens the segment bound to key, per mode.
//
// Created segments are chowned to the effective user and restricted to
// mode 0600. A creation that fails part-way removes the segment before
// returning.
func New(key, size int, mode CreateMode) (*Memory, error) {
	if key < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKey, key)
	}

	flags := 0
	if mode != None {
		flags = unix.IPC_CREAT | unix.IPC_EXCL
	}
	id, err := unix.SysvShmGet(key, size, flags)
	if err != nil && mode == Recreate {
		// Remove the stale segment and take its key.
		if stale, staleErr := unix.SysvShmGet(key, size, 0); staleErr == nil {
			_, _ = unix.SysvShmCtl(stale, unix.IPC_RMID, nil)
			id, err = unix.SysvShmGet(key, size, unix.IPC_CREAT|unix.IPC_EXCL)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("shm: shmget key %#x size %d: %w", key, size, err)
	}

	if mode != None {
		var desc unix.SysvShmDesc
		if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
			_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
			return nil, fmt.Errorf("shm: stat segment %d: %w", id, err)
		}
		desc.Perm.Uid = uint32(os.Getuid())
		// IPC_SET applies only the permission bits on Linux; SHM_DEST is
		// advisory here and removal stays Close's job.
		desc.Perm.Mode = 0o600 | shmDest
		if _, err := unix.SysvShmCtl(id, unix.IPC_SET, &desc); err != nil {
			_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
			return nil, fmt.Errorf("shm: restrict segment %d: %w", id, err)
		}
	}

	return &Memory{
		id:    id,
		key:   key,
		size:  size,
		owner: mode != None,
	}, nil
}

// NewFile creates or opens the segment whose key is derived from an
// existing file's identity, so unrelated processes can rendezvous on a path
// instead of coordinating numeric keys.
func NewFile(path string, size int, mode CreateMode) (*Memory, error) {
	key, err := ftok(path, projectID)
	if err != nil {
		return nil, fmt.Errorf("shm: ftok %q: %w", path, err)
	}
	return New(key, size, mode)
}

// Attach maps the segment and returns it as a byte slice of the segment's
// size. The mapping is read-only unless flag includes Write. Attach is
// idempotent; repeated calls return the established mapping regardless of
// flag.
func (m *Memory) Attach(flag AttachFlag) ([]byte, error) {
	if m.id < 0 {
		return nil, ErrClosed
	}
	if m.data != nil {
		return m.data, nil
	}
	shmFlag := 0
	if flag&Write == 0 {
		shmFlag |= unix.SHM_RDONLY
	}
	data, err := unix.SysvShmAttach(m.id, 0, shmFlag)
	if err != nil {
		return nil, fmt.Errorf("shm: attach segment %d: %w", m.id, err)
	}
	m.data = data
	return m.data, nil
}

// Detach unmaps the segment. The slice returned by Attach must not be used
// afterwards. Detaching an unattached segment is a no-op.
func (m *Memory) Detach() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.SysvShmDetach(data); err != nil {
		return fmt.Errorf("shm: detach segment %d: %w", m.id, err)
	}
	return nil
}

// Close detaches and, for the owning handle, removes the segment.
// Idempotent.
func (m *Memory) Close() error {
	if m.id < 0 {
		return nil
	}
	err := m.Detach()
	if m.owner {
		// The segment may already be gone if every user detached after
		// the self-destruct mark.
		if _, rmErr := unix.SysvShmCtl(m.id, unix.IPC_RMID, nil); rmErr != nil &&
			!errors.Is(rmErr, unix.EINVAL) && !errors.Is(rmErr, unix.EIDRM) && err == nil {
			err = fmt.Errorf("shm: remove segment %d: %w", m.id, rmErr)
		}
	}
	m.id = -1
	return err
}

// Key returns the System V IPC key the segment is bound to.
func (m *Memory) Key() int { return m.key }

// ID returns the segment identifier, or -1 after Close.
func (m *Memory) ID() int { return m.id }

// Size returns the segment size requested at creation.
func (m *Memory) Size() int { return m.size }

// IsOwner reports whether Close will remove the segment.
func (m *Memory) IsOwner() bool { return m.owner }

// IsValid reports whether the handle refers to a segment, i.e. Close has not
// been called.
func (m *Memory) IsValid() bool { return m.id >= 0 }

// IsAttached reports whether the segment is currently mapped.
func (m *Memory) IsAttached() bool { return m.data != nil }
