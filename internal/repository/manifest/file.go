package manifest

import (
	"bytes"
	"context"
	"crypto"
	"crypto/md5" //nolint:gosec // The repository format mandates MD5.
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/repoupdate/internal/logger"
)

const (
	// DefaultFileMode is applied to the manifest and checksum files.
	DefaultFileMode os.FileMode = 0o644

	// DefaultDirMode is applied to the repository root when it has to be created.
	DefaultDirMode os.FileMode = 0o755
)

var (
	// ErrNotFound is returned when the repository has no manifest yet.
	ErrNotFound = errors.New("manifest not found")
	// ErrMalformed is returned when an existing manifest cannot be understood.
	ErrMalformed = errors.New("malformed manifest")
)

// Repository defines persistence operations for the manifest.
type Repository interface {
	Load(ctx context.Context) (*Index, error)
	Save(ctx context.Context, doc *Document) error
}

// FileRepository keeps the manifest and its checksum in a repository directory.
type FileRepository struct {
	// dir is the repository root.
	dir string
	// replace atomically swaps a file's contents.
	replace func(path string, data []byte) error
}

// NewFileRepository creates a repository rooted at dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{
		dir:     filepath.Clean(dir),
		replace: replaceFile,
	}
}

// Path returns the manifest location.
func (r *FileRepository) Path() string {
	return filepath.Join(r.dir, Filename)
}

// ChecksumPath returns the checksum file location.
func (r *FileRepository) ChecksumPath() string {
	return filepath.Join(r.dir, ChecksumFilename)
}

// Load reads the published manifest.
// A missing file yields ErrNotFound; unreadable XML or bad entries yield ErrMalformed.
func (r *FileRepository) Load(_ context.Context) (*Index, error) {
	contents, err := os.ReadFile(r.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read manifest: %w", err)
	}

	doc := etree.NewDocument()
	if err = doc.ReadFromBytes(contents); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, r.Path(), err)
	}

	return parseIndex(doc)
}

// Save writes doc to the manifest file and its MD5 to the checksum file.
// Each file is replaced atomically, one after the other. If the checksum cannot be
// replaced, the previous manifest is put back (or the new one removed when there was
// none) so the pair never disagrees; a crash between the two renames can still leave
// a stale checksum until the next run.
func (r *FileRepository) Save(ctx context.Context, doc *Document) error {
	data, err := doc.Bytes()
	if err != nil {
		return err
	}

	if err = os.MkdirAll(r.dir, DefaultDirMode); err != nil {
		return fmt.Errorf("create repository root: %w", err)
	}

	previous, err := os.ReadFile(r.Path())

	hadPrevious := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read manifest: %w", err)
	}

	if err = r.replace(r.Path(), data); err != nil {
		return fmt.Errorf("write %s: %w", r.Path(), err)
	}

	if err = r.replace(r.ChecksumPath(), []byte(Checksum(data))); err != nil {
		if restoreErr := r.restore(previous, hadPrevious); restoreErr != nil {
			logger.ErrorKV(ctx, "Failed to restore manifest", "path", r.Path(), "error", restoreErr)
		}

		return fmt.Errorf("write %s: %w", r.ChecksumPath(), err)
	}

	logger.InfoKV(ctx, "Updated file", "path", r.Path())
	logger.InfoKV(ctx, "Updated file", "path", r.ChecksumPath())

	return nil
}

// restore puts the manifest back to its state before Save.
func (r *FileRepository) restore(previous []byte, hadPrevious bool) error {
	if !hadPrevious {
		return os.Remove(r.Path())
	}

	return r.replace(r.Path(), previous)
}

// replaceFile swaps path for data in one rename, verifying the MD5 of what go-update installs.
func replaceFile(path string, data []byte) error {
	// go-update moves the previous file aside, so the target has to exist.
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err = os.WriteFile(path, nil, DefaultFileMode); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	sum := md5.Sum(data) //nolint:gosec // See import.

	return goupdate.Apply(bytes.NewReader(data), goupdate.Options{
		TargetPath: path,
		TargetMode: DefaultFileMode,
		Checksum:   sum[:],
		Hash:       crypto.MD5,
	})
}
