//go:build linux

package shm

import "golang.org/x/sys/unix"

// projectID disambiguates this package's keys from other ftok users of the
// same path.
const projectID = 3946

// ftok derives a System V IPC key from an existing file's identity, using
// the same combination as the C library: the low 16 bits of the inode, the
// low 8 bits of the device, and the low 8 bits of the project id.
func ftok(path string, projID int) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return -1, err
	}
	key := (uint32(st.Ino) & 0xffff) |
		((uint32(st.Dev) & 0xff) << 16) |
		((uint32(projID) & 0xff) << 24)
	return int(int32(key)), nil
}
