// Package shm wraps System V shared memory segments: create or open by key
// or by file path, attach as a byte slice, and tear down with the same
// owner semantics as the creating process.
//
// Segments created by this package are restricted to the owning user (mode
// 0600) and removed when the creating handle is closed; opening handles
// only detach. Recreate additionally removes a stale segment with the same
// key before creating, for owners recovering from an unclean shutdown.
//
// Linux only.
package shm
