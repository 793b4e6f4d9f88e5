// Package pairing groups the files of an extracted export into Pairs: a JSON
// sidecar with the base image and the "-edited" variant it describes.
package pairing

import (
	"cmp"
	"log/slog"
	"maps"
	"os"
	"slices"
)

// Member is a file that landed in an already-filled role of its Pair.
type Member struct {
	Path string
	Role Role
}

// Pair is every file sharing one canonical key. Empty strings mark absent
// members; a Pair always has at least one member.
type Pair struct {
	Key         string
	Sidecar     string
	BaseImage   string
	EditedImage string
	// Duplicates holds files whose role was already taken, for example the
	// .MOV half of a live photo next to its .HEIC.
	Duplicates []Member
}

// Images returns the image paths to write, in processing order: base,
// edited, then duplicate images.
func (p *Pair) Images() []string {
	var out []string
	if p.BaseImage != "" {
		out = append(out, p.BaseImage)
	}
	if p.EditedImage != "" {
		out = append(out, p.EditedImage)
	}
	for _, d := range p.Duplicates {
		if d.Role != RoleSidecar {
			out = append(out, d.Path)
		}
	}
	return out
}

// Members returns every path in the Pair.
func (p *Pair) Members() []string {
	var out []string
	for _, s := range []string{p.Sidecar, p.BaseImage, p.EditedImage} {
		if s != "" {
			out = append(out, s)
		}
	}
	for _, d := range p.Duplicates {
		out = append(out, d.Path)
	}
	return out
}

func (p *Pair) set(path string, role Role) (duplicate bool) {
	slot := &p.BaseImage
	switch role {
	case RoleSidecar:
		slot = &p.Sidecar
	case RoleEdited:
		slot = &p.EditedImage
	}
	if *slot == "" {
		*slot = path
		return false
	}
	p.Duplicates = append(p.Duplicates, Member{Path: path, Role: role})
	return true
}

// Set is the keyed result of Resolve.
type Set struct {
	Pairs map[string]*Pair
	// Unclassified lists paths no key could be derived for.
	Unclassified []string
	// Directories lists input paths skipped because they are directories.
	Directories []string
}

// Sorted returns the pairs ordered by key.
func (s *Set) Sorted() []*Pair {
	out := slices.Collect(maps.Values(s.Pairs))
	slices.SortFunc(out, func(a, b *Pair) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// Len returns the number of pairs.
func (s *Set) Len() int { return len(s.Pairs) }

// Options configures Resolve.
type Options struct {
	Logger *slog.Logger
}

// Resolve folds every path into a Pair keyed by its canonical key. The input
// set is consumed: it is empty when Resolve returns. Paths are visited in
// sorted order so role collisions resolve the same way on every run.
func Resolve(paths map[string]struct{}, opts Options) *Set {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	ordered := slices.Sorted(maps.Keys(paths))
	clear(paths)

	set := &Set{Pairs: make(map[string]*Pair)}
	for _, path := range ordered {
		if isDir(path) {
			set.Directories = append(set.Directories, path)
			continue
		}

		key, role, ok := CanonicalKey(path)
		if !ok {
			log.Warn("cannot classify file, skipping", "path", path)
			set.Unclassified = append(set.Unclassified, path)
			continue
		}

		pair, exists := set.Pairs[key]
		if !exists {
			pair = &Pair{Key: key}
			set.Pairs[key] = pair
		}
		if pair.set(path, role) {
			log.Debug("role already filled, keeping as duplicate",
				"key", key, "role", role.String(), "path", path)
		}
	}

	return set
}

// isDir reports whether path is an existing directory. Paths that cannot be
// stat'ed are treated as files.
func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}
