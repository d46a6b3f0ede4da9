package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/repoupdate/internal/domain/addon"
)

func descriptor(t *testing.T, raw string) *etree.Element {
	t.Helper()

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(raw))

	return doc.Root()
}

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing manifest.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(t.TempDir())
	index, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, index)
	require.Zero(t, index.Len())
}

// TestFileRepository_Malformed keeps broken manifests distinct from missing ones.
func TestFileRepository_Malformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"syntax":      `<addons><addon id="a" version="1.0"`,
		"empty":       ``,
		"wrong root":  `<repository/>`,
		"missing id":  `<addons><addon version="1.0"/></addons>`,
		"bad version": `<addons><addon id="a" version="one"/></addons>`,
	}

	for name, contents := range cases {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte(contents), 0o600))

		_, err := NewFileRepository(dir).Load(context.Background())
		require.ErrorIs(t, err, ErrMalformed, name)
		require.NotErrorIs(t, err, ErrNotFound, name)
	}
}

// TestFileRepository_SaveLoad_Roundtrip writes a manifest and reads the versions back.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "repo")
	repo := NewFileRepository(dir)

	doc := NewDocument()
	doc.Append(descriptor(t, `<addon id="a" version="1.0"><summary>first</summary></addon>`))
	doc.Append(descriptor(t, `<addon id="b" version="10.2.1"/>`))
	require.Equal(t, 2, doc.Len())

	require.NoError(t, repo.Save(context.Background(), doc))

	index, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, index.Len())

	v, ok := index.Version("b")
	require.True(t, ok)
	require.Equal(t, addon.Version{10, 2, 1}, v)

	_, ok = index.Version("c")
	require.False(t, ok)
}

// TestFileRepository_Checksum ensures the .md5 file matches the manifest bytes exactly.
func TestFileRepository_Checksum(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(dir)

	// A stale manifest is replaced, not appended to.
	require.NoError(t, os.WriteFile(repo.Path(), []byte("stale"), 0o600))

	doc := NewDocument()
	doc.Append(descriptor(t, `<addon id="a" version="1.0"/>`))
	require.NoError(t, repo.Save(context.Background(), doc))

	manifestBytes, err := os.ReadFile(repo.Path())
	require.NoError(t, err)

	want, err := doc.Bytes()
	require.NoError(t, err)
	require.Equal(t, want, manifestBytes)

	checksum, err := os.ReadFile(repo.ChecksumPath())
	require.NoError(t, err)
	require.Equal(t, Checksum(manifestBytes), string(checksum))
	require.Len(t, checksum, 32)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2, "no leftover temporary files")
}

// TestFileRepository_SaveChecksumFailure keeps the manifest and checksum in agreement when the checksum write fails.
func TestFileRepository_SaveChecksumFailure(t *testing.T) {
	t.Parallel()

	errDiskFull := errors.New("disk full")

	failChecksum := func(repo *FileRepository) {
		repo.replace = func(path string, data []byte) error {
			if path == repo.ChecksumPath() {
				return errDiskFull
			}

			return replaceFile(path, data)
		}
	}

	doc := NewDocument()
	doc.Append(descriptor(t, `<addon id="a" version="2.0"/>`))

	t.Run("previous manifest restored", func(t *testing.T) {
		t.Parallel()

		repo := NewFileRepository(t.TempDir())

		old := NewDocument()
		old.Append(descriptor(t, `<addon id="a" version="1.0"/>`))
		require.NoError(t, repo.Save(context.Background(), old))

		before, err := os.ReadFile(repo.Path())
		require.NoError(t, err)

		failChecksum(repo)
		require.ErrorIs(t, repo.Save(context.Background(), doc), errDiskFull)

		after, err := os.ReadFile(repo.Path())
		require.NoError(t, err)
		require.Equal(t, before, after)

		checksum, err := os.ReadFile(repo.ChecksumPath())
		require.NoError(t, err)
		require.Equal(t, Checksum(after), string(checksum))
	})

	t.Run("new manifest removed", func(t *testing.T) {
		t.Parallel()

		repo := NewFileRepository(t.TempDir())
		failChecksum(repo)

		require.ErrorIs(t, repo.Save(context.Background(), doc), errDiskFull)

		_, err := repo.Load(context.Background())
		require.ErrorIs(t, err, ErrNotFound)
	})
}

// TestDocumentBytes checks ordering, verbatim entries and deterministic output.
func TestDocumentBytes(t *testing.T) {
	t.Parallel()

	build := func() []byte {
		doc := NewDocument()
		doc.Append(descriptor(t, `<addon id="z" version="2.0" name="Zed"><extension point="x"/></addon>`))
		doc.Append(descriptor(t, `<addon id="a" version="1.0"/>`))

		data, err := doc.Bytes()
		require.NoError(t, err)

		return data
	}

	first := build()
	require.Equal(t, first, build())
	require.Equal(t,
		`<?xml version="1.0" encoding="UTF-8"?>`+
			`<addons><addon id="z" version="2.0" name="Zed"><extension point="x"/></addon>`+
			`<addon id="a" version="1.0"/></addons>`,
		string(first))
}

// TestChecksum compares against a known digest.
func TestChecksum(t *testing.T) {
	t.Parallel()

	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Checksum(nil))
}
