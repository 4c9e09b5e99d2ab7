//go:build !unix

package permission

import (
	"errors"
	"os"
)

func probeAccess(path string, mode Mode) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode == ReadWrite && info.Mode().Perm()&0o200 == 0 {
		return errors.New("read-only")
	}
	return nil
}
