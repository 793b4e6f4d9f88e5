package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalker_Collect_Empty(t *testing.T) {
	files, err := NewWalker(nil, WalkOptions{}).Collect(t.Context(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWalker_Collect_NestedFilesOnly(t *testing.T) {
	root := t.TempDir()
	want := []string{
		filepath.Join(root, "img.jpg"),
		filepath.Join(root, "img.jpg.json"),
		filepath.Join(root, "Photos from 2019", "a.jpg"),
		filepath.Join(root, "Photos from 2019", "deep", "er", "b-edited.jpg"),
	}
	for _, p := range want {
		writeFile(t, p, "x")
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "dir"), 0o755))

	files, err := NewWalker(nil, WalkOptions{}).Collect(t.Context(), root)
	require.NoError(t, err)

	var got []string
	for p := range files {
		got = append(got, p)
	}
	assert.ElementsMatch(t, want, got)
}

func TestWalker_HiddenFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".DS_Store"), "x")
	writeFile(t, filepath.Join(root, ".cache", "a.jpg"), "x")
	writeFile(t, filepath.Join(root, "b.jpg"), "x")

	all, err := NewWalker(nil, WalkOptions{}).Collect(t.Context(), root)
	require.NoError(t, err)
	assert.Len(t, all, 3, "hidden files are included by default")

	visible, err := NewWalker(nil, WalkOptions{SkipHidden: true}).Collect(t.Context(), root)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{filepath.Join(root, "b.jpg"): {}}, visible)
}

func TestWalker_SkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	target := filepath.Join(root, "a.jpg")
	writeFile(t, target, "x")
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.jpg")))

	files, err := NewWalker(nil, WalkOptions{}).Collect(t.Context(), root)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestWalker_Walk_ReportsRelPathAndSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.jpg"), "hello")

	var results []WalkResult
	for r := range NewWalker(nil, WalkOptions{}).Walk(t.Context(), root) {
		require.NoError(t, r.Error)
		results = append(results, r)
	}

	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join("sub", "a.jpg"), results[0].RelPath)
	assert.Equal(t, int64(5), results[0].Size)
}

func TestWalker_Collect_MissingRoot(t *testing.T) {
	_, err := NewWalker(nil, WalkOptions{}).Collect(t.Context(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, errors.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWalker_Collect_RootIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.zip")
	writeFile(t, path, "x")

	_, err := NewWalker(nil, WalkOptions{}).Collect(t.Context(), path)
	assert.ErrorIs(t, err, errors.ErrIO)
}

func TestWalker_Collect_UnreadableSubdirIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.jpg"), "x")
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hidden.jpg"), "x")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	files, err := NewWalker(nil, WalkOptions{}).Collect(t.Context(), root)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestWalker_Collect_Canceled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "x")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewWalker(nil, WalkOptions{}).Collect(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
