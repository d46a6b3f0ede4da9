package release

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/repoupdate/internal/domain/addon"
)

func writeFile(t *testing.T, name, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(contents), 0o600))
}

// newSource lays out an add-on under an on-disk folder that differs from its id.
func newSource(t *testing.T) *addon.Package {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "checkout-of-my-addon")
	descriptor := `<addon id="myaddon" version="1.0.0" name="Mine"/>`

	writeFile(t, filepath.Join(dir, addon.DescriptorFilename), descriptor)
	writeFile(t, filepath.Join(dir, "default.py"), "print('hi')")
	writeFile(t, filepath.Join(dir, IconFilename), "png")
	writeFile(t, filepath.Join(dir, ChangelogFilename), "v1.0.0 initial")
	writeFile(t, filepath.Join(dir, "resources", "lib", "util.py"), "pass")
	writeFile(t, filepath.Join(dir, "resources", "language", "English", "strings.po"), "msgid \"\"")
	writeFile(t, filepath.Join(dir, "README.md"), "not shipped")
	writeFile(t, filepath.Join(dir, "build.sh"), "not shipped")

	pkg, err := addon.Load(filepath.Join(dir, addon.DescriptorFilename))
	require.NoError(t, err)

	return pkg
}

func readArchive(t *testing.T, name string) map[string]string {
	t.Helper()

	r, err := zip.OpenReader(name)
	require.NoError(t, err)

	defer func() {
		_ = r.Close()
	}()

	entries := make(map[string]string, len(r.File))

	for _, f := range r.File {
		require.Equal(t, zip.Deflate, f.Method, f.Name)

		rc, err := f.Open()
		require.NoError(t, err)

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		entries[f.Name] = string(data)
	}

	return entries
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// TestBuild checks archive layout, filtering and auxiliary copies.
func TestBuild(t *testing.T) {
	t.Parallel()

	pkg := newSource(t)
	root := t.TempDir()

	require.NoError(t, Build(context.Background(), pkg, root))

	dest := filepath.Join(root, "myaddon")
	entries := readArchive(t, filepath.Join(dest, "myaddon-1.0.0.zip"))

	require.Equal(t, []string{
		"myaddon/addon.xml",
		"myaddon/changelog.txt",
		"myaddon/default.py",
		"myaddon/icon.png",
		"myaddon/resources/language/English/strings.po",
		"myaddon/resources/lib/util.py",
	}, keys(entries))
	require.Equal(t, "print('hi')", entries["myaddon/default.py"])

	for _, name := range []string{addon.DescriptorFilename, IconFilename, "changelog-1.0.0.txt"} {
		_, err := os.Stat(filepath.Join(dest, name))
		require.NoError(t, err, name)
	}

	// No fanart in the source, nothing copied and no error.
	_, err := os.Stat(filepath.Join(dest, FanartFilename))
	require.ErrorIs(t, err, os.ErrNotExist)

	changelog, err := os.ReadFile(filepath.Join(dest, "changelog-1.0.0.txt"))
	require.NoError(t, err)
	require.Equal(t, "v1.0.0 initial", string(changelog))
}

// TestBuildIsIdempotent re-runs a release and expects the same archive contents.
func TestBuildIsIdempotent(t *testing.T) {
	t.Parallel()

	pkg := newSource(t)
	root := t.TempDir()

	require.NoError(t, Build(context.Background(), pkg, root))
	first := readArchive(t, filepath.Join(root, pkg.ID, ArchiveName(pkg)))

	require.NoError(t, Build(context.Background(), pkg, root))
	second := readArchive(t, filepath.Join(root, pkg.ID, ArchiveName(pkg)))

	require.Equal(t, first, second)

	files, err := os.ReadDir(filepath.Join(root, pkg.ID))
	require.NoError(t, err)
	require.Len(t, files, 4)
}

// TestBuildSkipsNestedRepository keeps a repository inside the add-on folder out of the archive.
func TestBuildSkipsNestedRepository(t *testing.T) {
	t.Parallel()

	pkg := newSource(t)
	root := filepath.Join(pkg.Dir, "repo")

	require.NoError(t, Build(context.Background(), pkg, root))
	require.NoError(t, Build(context.Background(), pkg, root))

	for name := range readArchive(t, filepath.Join(root, pkg.ID, ArchiveName(pkg))) {
		require.NotContains(t, name, "myaddon/repo/myaddon/")
	}
}

// TestBuildUnreadableSource propagates archive failures and leaves no partial archive.
func TestBuildUnreadableSource(t *testing.T) {
	t.Parallel()

	if os.Geteuid() == 0 {
		t.Skip("root can read files without permission")
	}

	pkg := newSource(t)
	locked := filepath.Join(pkg.Dir, "locked.py")
	writeFile(t, locked, "secret")
	require.NoError(t, os.Chmod(locked, 0o000))

	root := t.TempDir()
	err := Build(context.Background(), pkg, root)
	require.ErrorIs(t, err, os.ErrPermission)

	_, err = os.Stat(filepath.Join(root, pkg.ID, ArchiveName(pkg)))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestBuildInsideSourceFolder releases into the add-on's own folder without damaging it.
func TestBuildInsideSourceFolder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "myaddon")
	descriptor := `<addon id="myaddon" version="1.0.0" name="Mine"/>`

	writeFile(t, filepath.Join(dir, addon.DescriptorFilename), descriptor)
	writeFile(t, filepath.Join(dir, "main.py"), "print('hi')")
	writeFile(t, filepath.Join(dir, IconFilename), "png")
	writeFile(t, filepath.Join(dir, ChangelogFilename), "v1.0.0 initial")

	pkg, err := addon.Load(filepath.Join(dir, addon.DescriptorFilename))
	require.NoError(t, err)

	for range 2 {
		require.NoError(t, Build(context.Background(), pkg, root))

		entries := readArchive(t, filepath.Join(dir, ArchiveName(pkg)))
		require.Equal(t, []string{
			"myaddon/addon.xml",
			"myaddon/changelog.txt",
			"myaddon/icon.png",
			"myaddon/main.py",
		}, keys(entries))
		require.Equal(t, descriptor, entries["myaddon/addon.xml"])
		require.Equal(t, "print('hi')", entries["myaddon/main.py"])

		for name, want := range map[string]string{
			addon.DescriptorFilename: descriptor,
			IconFilename:             "png",
			ChangelogFilename:        "v1.0.0 initial",
			"changelog-1.0.0.txt":    "v1.0.0 initial",
		} {
			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err, name)
			require.Equal(t, want, string(data), name)
		}
	}
}
