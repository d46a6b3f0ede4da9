package release

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/oshokin/repoupdate/internal/domain/addon"
	"github.com/oshokin/repoupdate/internal/logger"
)

const (
	// ArchiveExtension is appended to "<id>-<version>" to name the release archive.
	ArchiveExtension = ".zip"

	// IconFilename and FanartFilename are copied next to the archive when present.
	IconFilename   = "icon.png"
	FanartFilename = "fanart.jpg"

	// ChangelogFilename is copied as changelog-<version>.txt when present.
	ChangelogFilename = "changelog.txt"

	dirMode os.FileMode = 0o755
)

// archivedExtensions lists the file types packed into release archives.
//
//nolint:gochecknoglobals // Fixed lookup table.
var archivedExtensions = map[string]struct{}{
	".py":  {},
	".xml": {},
	".jpg": {},
	".png": {},
	".txt": {},
	".po":  {},
}

// ArchiveName returns the archive filename of pkg.
func ArchiveName(pkg *addon.Package) string {
	return pkg.String() + ArchiveExtension
}

// ChangelogName returns the versioned changelog filename of pkg.
func ChangelogName(pkg *addon.Package) string {
	return "changelog-" + pkg.VersionString + ".txt"
}

// Build writes the release artifacts of pkg into root/<id>.
// Re-running for the same version overwrites the same files.
func Build(ctx context.Context, pkg *addon.Package, root string) error {
	dest := filepath.Join(root, pkg.ID)
	if err := os.MkdirAll(dest, dirMode); err != nil {
		return fmt.Errorf("create release folder: %w", err)
	}

	archivePath := filepath.Join(dest, ArchiveName(pkg))
	if err := writeArchive(pkg, archivePath, dest); err != nil {
		return fmt.Errorf("create archive %s: %w", archivePath, err)
	}

	logger.InfoKV(ctx, "Created archive", "path", archivePath)

	for _, name := range []string{addon.DescriptorFilename, IconFilename, FanartFilename} {
		if err := copyOptional(ctx, filepath.Join(pkg.Dir, name), filepath.Join(dest, name)); err != nil {
			return err
		}
	}

	return copyOptional(ctx, filepath.Join(pkg.Dir, ChangelogFilename), filepath.Join(dest, ChangelogName(pkg)))
}

// writeArchive zips every allow-listed file below pkg.Dir as <id>/<relative path>.
// skipDir is left out of the walk so earlier releases never end up inside the archive,
// unless it is pkg.Dir itself, which happens when the repository root is the source root.
func writeArchive(pkg *addon.Package, archivePath, skipDir string) (err error) {
	out, err := os.Create(filepath.Clean(archivePath))
	if err != nil {
		return err
	}

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	defer func() {
		if closeErr := zw.Close(); err == nil {
			err = closeErr
		}

		if closeErr := out.Close(); err == nil {
			err = closeErr
		}

		if err != nil {
			_ = os.Remove(archivePath)
		}
	}()

	return filepath.WalkDir(pkg.Dir, func(name string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if name == skipDir && name != pkg.Dir {
				return filepath.SkipDir
			}

			return nil
		}

		if _, ok := archivedExtensions[filepath.Ext(name)]; !ok {
			return nil
		}

		if skipDir == pkg.Dir && filepath.Dir(name) == skipDir && isVersionedChangelog(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(pkg.Dir, name)
		if err != nil {
			return err
		}

		return addFile(zw, name, path.Join(pkg.ID, filepath.ToSlash(rel)))
	})
}

// isVersionedChangelog reports whether name is a changelog copy written by an earlier release.
func isVersionedChangelog(name string) bool {
	matched, _ := filepath.Match("changelog-*.txt", name)

	return matched
}

// addFile stores the regular file at name under entryName. Symlinks are followed.
func addFile(zw *zip.Writer, name, entryName string) error {
	info, err := os.Stat(name)
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = entryName
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	in, err := os.Open(filepath.Clean(name))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	_, err = io.Copy(w, in)

	return err
}

// copyOptional copies src to dst, skipping silently when src does not exist.
func copyOptional(ctx context.Context, src, dst string) error {
	copied, err := copyFile(src, dst)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	if copied {
		logger.InfoKV(ctx, "Copied file", "file", filepath.Base(src), "to", dst)
	}

	return nil
}

// copyFile copies src to dst with src's permissions.
// It reports false without error when src is missing or dst already is src,
// so a release folder that doubles as the source folder is never truncated.
func copyFile(src, dst string) (bool, error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	defer func() {
		_ = in.Close()
	}()

	info, err := in.Stat()
	if err != nil {
		return false, err
	}

	if info.IsDir() {
		return false, nil
	}

	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(info, dstInfo) {
		return false, nil
	}

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return false, err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return false, err
	}

	return true, out.Close()
}
