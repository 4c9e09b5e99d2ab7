//go:build unix

package permission

import "golang.org/x/sys/unix"

func probeAccess(path string, mode Mode) error {
	bits := uint32(unix.R_OK)
	if mode == ReadWrite {
		bits |= unix.W_OK
	}
	return unix.Access(path, bits)
}
