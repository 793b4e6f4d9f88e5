//go:build unix

package archive

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

const defaultFileMode fs.FileMode = 0o644

// setPermissions applies the permission bits stored in the archive.
func setPermissions(path string, mode fs.FileMode) error {
	return unix.Chmod(path, uint32(mode.Perm()))
}
