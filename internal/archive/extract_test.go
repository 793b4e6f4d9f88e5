package archive

import (
	"archive/tar"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/takeout-fixer/internal/errors"
)

type testEntry struct {
	name    string
	body    string
	mode    fs.FileMode // zero leaves the entry without POSIX mode bits
	dir     bool
	symlink string
}

func writeZip(t *testing.T, path string, entries []testEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		if e.mode != 0 {
			hdr.SetMode(e.mode)
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		if !e.dir {
			_, err = w.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
}

func writeTarGz(t *testing.T, path string, entries []testEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: int64(e.mode), Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		switch {
		case e.dir:
			hdr.Typeflag, hdr.Size = tar.TypeDir, 0
		case e.symlink != "":
			hdr.Typeflag, hdr.Size, hdr.Linkname = tar.TypeSymlink, 0, e.symlink
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWorkDir(t *testing.T) {
	tests := []struct {
		archive string
		want    string
	}{
		{"/in/takeout-001.zip", "/in/takeout-001"},
		{"/in/Takeout.ZIP", "/in/Takeout"},
		{"/in/takeout.tgz", "/in/takeout"},
		{"/in/takeout-2024.tar.gz", "/in/takeout-2024"},
		{"/in/export.bin", "/in/export"},
		{"/in/export", "/in/export_extracted"},
		{"/in/.zip", "/in/.zip_extracted"},
		{"relative.zip", "relative"},
	}

	for _, tt := range tests {
		t.Run(tt.archive, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), WorkDir(filepath.FromSlash(tt.archive)))
		})
	}
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "takeout.zip")
	writeZip(t, archivePath, []testEntry{
		{name: "Takeout/", dir: true, mode: fs.ModeDir | 0o755},
		{name: "Takeout/Google Photos/img.jpg", body: "jpeg"},
		{name: "Takeout/Google Photos/img.jpg.json", body: `{"title":"img.jpg"}`},
		{name: "Takeout/Google Photos/Photos from 2019/a-edited.jpg", body: "edited"},
		{name: "empty/", dir: true},
	})

	result, err := NewExtractor(nil).Extract(t.Context(), archivePath)
	require.NoError(t, err)

	workDir := filepath.Join(dir, "takeout")
	assert.Equal(t, workDir, result.WorkDir)
	assert.Equal(t, []string{
		filepath.Join(workDir, "Takeout", "Google Photos", "img.jpg"),
		filepath.Join(workDir, "Takeout", "Google Photos", "img.jpg.json"),
		filepath.Join(workDir, "Takeout", "Google Photos", "Photos from 2019", "a-edited.jpg"),
	}, result.Files)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, `{"title":"img.jpg"}`, readFile(t, result.Files[1]))
}

func TestExtract_RestoresPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no POSIX permissions")
	}
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "perm.zip")
	writeZip(t, archivePath, []testEntry{
		{name: "script.sh", body: "#!/bin/sh", mode: 0o750},
		{name: "private.jpg", body: "x", mode: 0o600},
		{name: "dos.jpg", body: "x"},
	})

	result, err := NewExtractor(nil).Extract(t.Context(), archivePath)
	require.NoError(t, err)
	require.Len(t, result.Files, 3)

	modes := make(map[string]fs.FileMode)
	for _, p := range result.Files {
		info, err := os.Stat(p)
		require.NoError(t, err)
		modes[filepath.Base(p)] = info.Mode().Perm()
	}
	assert.Equal(t, fs.FileMode(0o750), modes["script.sh"])
	assert.Equal(t, fs.FileMode(0o600), modes["private.jpg"])
	assert.Equal(t, defaultFileMode, modes["dos.jpg"])
}

func TestExtract_SkipsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	inner := filepath.Join(dir, "inbox")
	require.NoError(t, os.Mkdir(inner, 0o755))
	archivePath := filepath.Join(inner, "evil.zip")
	writeZip(t, archivePath, []testEntry{
		{name: "../escaped.txt", body: "x"},
		{name: "a/../../escaped2.txt", body: "x"},
		{name: "/abs.txt", body: "x"},
		{name: "ok/../fine.txt", body: "fine"},
	})

	result, err := NewExtractor(nil).Extract(t.Context(), archivePath)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"../escaped.txt", "a/../../escaped2.txt", "/abs.txt"}, result.Skipped)
	assert.Equal(t, []string{filepath.Join(inner, "evil", "fine.txt")}, result.Files)
	assert.NoFileExists(t, filepath.Join(dir, "escaped.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "escaped2.txt"))
}

func TestExtract_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "again.zip")
	writeZip(t, archivePath, []testEntry{
		{name: "ro.jpg", body: "v1", mode: 0o444},
		{name: "rw.jpg", body: "v1"},
	})

	first, err := NewExtractor(nil).Extract(t.Context(), archivePath)
	require.NoError(t, err)

	// Local edits are replaced by the archive contents.
	require.NoError(t, os.WriteFile(first.Files[1], []byte("local"), 0o644))

	second, err := NewExtractor(nil).Extract(t.Context(), archivePath)
	require.NoError(t, err)
	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, "v1", readFile(t, second.Files[0]))
	assert.Equal(t, "v1", readFile(t, second.Files[1]))

	leftovers, err := filepath.Glob(filepath.Join(second.WorkDir, ".extract-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestExtract_TarGz(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "takeout-2024.tgz")
	writeTarGz(t, archivePath, []testEntry{
		{name: "Takeout/", dir: true, mode: 0o755},
		{name: "Takeout/img.jpg", body: "jpeg", mode: 0o640},
		{name: "Takeout/img.jpg.json", body: "{}", mode: 0o644},
		{name: "Takeout/link.jpg", symlink: "img.jpg"},
		{name: "../../etc/passwd", body: "root", mode: 0o644},
	})

	result, err := NewExtractor(nil).Extract(t.Context(), archivePath)
	require.NoError(t, err)

	workDir := filepath.Join(dir, "takeout-2024")
	assert.Equal(t, []string{
		filepath.Join(workDir, "Takeout", "img.jpg"),
		filepath.Join(workDir, "Takeout", "img.jpg.json"),
	}, result.Files)
	assert.Equal(t, []string{"../../etc/passwd"}, result.Skipped)
	assert.Equal(t, "jpeg", readFile(t, result.Files[0]))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(result.Files[0])
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o640), info.Mode().Perm())
	}
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	zipNoExt := filepath.Join(dir, "export.bin")
	writeZip(t, zipNoExt, []testEntry{{name: "a.jpg", body: "x"}})
	format, err := DetectFormat(zipNoExt)
	require.NoError(t, err)
	assert.Equal(t, FormatZip, format)

	gzNoExt := filepath.Join(dir, "export.dat")
	writeTarGz(t, gzNoExt, []testEntry{{name: "a.jpg", body: "x", mode: 0o644}})
	format, err = DetectFormat(gzNoExt)
	require.NoError(t, err)
	assert.Equal(t, FormatTarGz, format)

	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0o644))
	_, err = DetectFormat(text)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestExtract_Failures(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing archive", func(t *testing.T) {
		_, err := NewExtractor(nil).Extract(t.Context(), filepath.Join(dir, "absent.zip"))
		assert.ErrorIs(t, err, errors.ErrIO)
	})

	t.Run("corrupt zip", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.zip")
		require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 not really"), 0o644))
		_, err := NewExtractor(nil).Extract(t.Context(), path)
		assert.ErrorIs(t, err, errors.ErrIO)
		assert.NoDirExists(t, filepath.Join(dir, "corrupt"), "nothing is created before the archive opens")
	})

	t.Run("work dir blocked by a file", func(t *testing.T) {
		path := filepath.Join(dir, "blocked.zip")
		writeZip(t, path, []testEntry{{name: "a.jpg", body: "x"}})
		require.NoError(t, os.WriteFile(filepath.Join(dir, "blocked"), []byte("file"), 0o644))

		_, err := NewExtractor(nil).Extract(t.Context(), path)
		assert.ErrorIs(t, err, errors.ErrIO)
	})

	t.Run("canceled", func(t *testing.T) {
		path := filepath.Join(dir, "cancel.zip")
		writeZip(t, path, []testEntry{{name: "a.jpg", body: "x"}})
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := NewExtractor(nil).Extract(ctx, path)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestConfine(t *testing.T) {
	root := filepath.FromSlash("/work")
	tests := []struct {
		name string
		ok   bool
	}{
		{"a/b.jpg", true},
		{"a/./b.jpg", true},
		{"../b.jpg", false},
		{"/etc/passwd", false},
		{"", false},
		{"a\x00b", false},
	}
	for _, tt := range tests {
		_, ok := confine(root, tt.name)
		assert.Equal(t, tt.ok, ok, "%q", tt.name)
	}
}
