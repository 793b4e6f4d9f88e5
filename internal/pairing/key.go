package pairing

import (
	"path/filepath"
	"strings"
)

// editedSuffix marks images re-saved by the photo service's editor.
const editedSuffix = "-edited"

// Role is the part a file plays in its Pair.
type Role int

const (
	RoleBase Role = iota
	RoleEdited
	RoleSidecar
)

func (r Role) String() string {
	switch r {
	case RoleEdited:
		return "edited"
	case RoleSidecar:
		return "sidecar"
	default:
		return "base"
	}
}

// splitExt splits a base name at its final dot. A leading dot does not start
// an extension, so ".hidden" has no extension.
func splitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// CanonicalKey derives the grouping key and role for path. The three
// variants "name.ext", "name.ext.json" and "name-edited.ext" share a key for
// any name, however many dots it contains. ok is false when nothing is left
// of the name once the suffix or extensions are removed ("-edited.jpg").
func CanonicalKey(path string) (key string, role Role, ok bool) {
	dir, name := filepath.Split(path)
	if name == "" || name == "." || name == ".." {
		return "", 0, false
	}
	stem, ext := splitExt(name)

	var base string
	switch {
	case strings.HasSuffix(stem, editedSuffix):
		base, role = strings.TrimSuffix(stem, editedSuffix), RoleEdited
	case ext == "json":
		base, _ = splitExt(stem)
		role = RoleSidecar
	default:
		base, role = stem, RoleBase
	}
	if base == "" {
		return "", 0, false
	}
	return dir + base, role, true
}
