//go:build !unix

package archive

import "io/fs"

const defaultFileMode fs.FileMode = 0o644

// setPermissions is a no-op where POSIX permission bits do not exist.
func setPermissions(string, fs.FileMode) error {
	return nil
}
