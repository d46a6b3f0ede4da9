package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/oshokin/repoupdate/internal/domain/addon"
	"github.com/oshokin/repoupdate/internal/logger"
)

// Discover lazily walks the source tree and yields one Package per add-on directory.
//
// A directory is an add-on when it directly contains addon.xml and no
// .repoignore file; its subdirectories are walked either way. Invalid
// descriptors and repeated ids are logged and skipped. The repository root is
// not walked when it lies inside the source tree. A walk failure is yielded
// as a final (nil, err) pair. Each iteration walks the tree afresh.
func (u *Updater) Discover(ctx context.Context) iter.Seq2[*addon.Package, error] {
	return func(yield func(*addon.Package, error) bool) {
		seen := make(map[string]string)

		err := filepath.WalkDir(u.sourceRoot, func(dir string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}

			if !d.IsDir() {
				return nil
			}

			if err := ctx.Err(); err != nil {
				return err
			}

			if dir == u.repositoryRoot && dir != u.sourceRoot {
				return filepath.SkipDir
			}

			pkg, err := loadPackage(ctx, dir)
			if err != nil || pkg == nil {
				return err
			}

			if first, duplicate := seen[pkg.ID]; duplicate {
				logger.WarnKV(ctx, "Skipping duplicate add-on", "id", pkg.ID, "path", pkg.Dir, "first", first)
				return nil
			}

			seen[pkg.ID] = pkg.Dir

			if !yield(pkg, nil) {
				return filepath.SkipAll
			}

			return nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// loadPackage returns the add-on rooted at dir, or nil when dir is not one.
func loadPackage(ctx context.Context, dir string) (*addon.Package, error) {
	descriptor := filepath.Join(dir, addon.DescriptorFilename)

	ok, err := isFile(descriptor)
	if err != nil || !ok {
		return nil, err
	}

	ignored, err := exists(filepath.Join(dir, addon.IgnoreFilename))
	if err != nil {
		return nil, err
	}

	if ignored {
		logger.DebugKV(ctx, "Ignoring add-on directory", "path", dir)
		return nil, nil
	}

	pkg, err := addon.Load(descriptor)
	if errors.Is(err, addon.ErrInvalidDescriptor) {
		logger.WarnKV(ctx, "Skipping invalid addon.xml", "path", descriptor, "error", err)
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("load %s: %w", descriptor, err)
	}

	return pkg, nil
}

// isFile reports whether name exists and is not a directory.
func isFile(name string) (bool, error) {
	info, err := os.Stat(name)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return !info.IsDir(), nil
}

// exists reports whether name exists, without following symlinks.
func exists(name string) (bool, error) {
	_, err := os.Lstat(name)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return err == nil, err
}
