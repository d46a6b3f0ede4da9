package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/repoupdate/internal/domain/addon"
	"github.com/oshokin/repoupdate/internal/logger"
	"github.com/oshokin/repoupdate/internal/repository/manifest"
	"github.com/oshokin/repoupdate/internal/service/release"
)

// ErrSourceNotFound is returned when the source root is missing or not a directory.
var ErrSourceNotFound = errors.New("source directory does not exist")

// ForceAll is the --force value that forces a release of every add-on.
const ForceAll = "*"

// Options are inputs accepted by the updater entry point.
type Options struct {
	// RepositoryRoot is the repository directory holding addons.xml.
	RepositoryRoot string
	// SourceRoot is the add-on source tree. Empty means the working directory.
	SourceRoot string
	// Update controls forced releases and manifest rewrites.
	Update UpdateOptions
}

// UpdateOptions controls a single Update call.
type UpdateOptions struct {
	// ForceAll releases every add-on even if it is not newer than the published one.
	ForceAll bool
	// ForceID releases only the add-on with this identifier even if it is not newer.
	ForceID string
	// ForceManifest rewrites addons.xml and its checksum even if nothing was released.
	ForceManifest bool
}

// Result summarizes an Update call.
type Result struct {
	// Found lists discovered add-on ids in discovery order.
	Found []string
	// Released lists the "id-version" of every add-on that was packaged.
	Released []string
	// ManifestWritten is true when addons.xml and addons.xml.md5 were rewritten.
	ManifestWritten bool
}

// releaseFunc builds the artifacts of one add-on under a repository root.
type releaseFunc func(ctx context.Context, pkg *addon.Package, root string) error

// Updater synchronizes one repository with one source tree.
type Updater struct {
	// repositoryRoot and sourceRoot are absolute, cleaned paths.
	repositoryRoot string
	sourceRoot     string
	// manifests persists addons.xml.
	manifests manifest.Repository
	// published is nil when the repository had no manifest yet.
	published *manifest.Index
	// release packages a single add-on.
	release releaseFunc
}

// Run creates an Updater for opts and performs one update.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "repoupdate")

	u, err := New(ctx, opts.RepositoryRoot, opts.SourceRoot)
	if err != nil {
		return err
	}

	if _, err = u.Update(ctx, opts.Update); err != nil {
		return fmt.Errorf("update repository: %w", err)
	}

	return nil
}

// New validates the source root and loads the published manifest, if any.
// A missing manifest means every add-on is new; a malformed one is an error.
func New(ctx context.Context, repositoryRoot, sourceRoot string) (*Updater, error) {
	if sourceRoot == "" {
		sourceRoot = "."
	}

	source, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceNotFound, sourceRoot, err)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceNotFound, sourceRoot, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceNotFound, sourceRoot)
	}

	repository, err := filepath.Abs(repositoryRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve repository root: %w", err)
	}

	u := &Updater{
		repositoryRoot: repository,
		sourceRoot:     source,
		release:        release.Build,
	}

	files := manifest.NewFileRepository(repository)
	u.manifests = files

	published, err := files.Load(ctx)

	switch {
	case errors.Is(err, manifest.ErrNotFound):
		logger.InfoKV(ctx, "No published manifest, every add-on is new", "path", files.Path())
	case err != nil:
		return nil, fmt.Errorf("load manifest: %w", err)
	default:
		logger.DebugKV(ctx, "Loaded published manifest", "path", files.Path(), "addons", published.Len())

		u.published = published
	}

	return u, nil
}

// NeedsUpdate reports whether an add-on at version has to be released:
// there is no published manifest, the add-on is not in it, or it is published at an older version.
func (u *Updater) NeedsUpdate(id string, version addon.Version) bool {
	if u.published == nil {
		return true
	}

	published, ok := u.published.Version(id)
	if !ok {
		return true
	}

	return published.Less(version)
}

// Update discovers all add-ons, releases the ones that need it and rewrites the manifest when anything changed.
// The walk completes before anything is packaged, so the manifest always lists exactly the add-ons found in this run.
func (u *Updater) Update(ctx context.Context, opts UpdateOptions) (*Result, error) {
	packages := make([]*addon.Package, 0)

	for pkg, err := range u.Discover(ctx) {
		if err != nil {
			return nil, fmt.Errorf("discover add-ons: %w", err)
		}

		packages = append(packages, pkg)
	}

	result := &Result{
		Found: make([]string, 0, len(packages)),
	}

	if len(packages) == 0 {
		logger.InfoKV(ctx, "No add-ons found", "source", u.sourceRoot)
		return result, nil
	}

	var (
		doc            = manifest.NewDocument()
		updateRequired = opts.ForceManifest
	)

	for _, pkg := range packages {
		logger.InfoKV(ctx, "Found add-on", "id", pkg.ID)

		result.Found = append(result.Found, pkg.ID)
		doc.Append(pkg.Descriptor())

		if !u.releaseRequired(pkg, opts) {
			continue
		}

		updateRequired = true

		logger.InfoKV(ctx, "Releasing add-on", "addon", pkg.String())

		if err := u.release(ctx, pkg, u.repositoryRoot); err != nil {
			return result, fmt.Errorf("release %s: %w", pkg, err)
		}

		result.Released = append(result.Released, pkg.String())
	}

	if !updateRequired {
		logger.Info(ctx, "No repo update required")
		return result, nil
	}

	if err := u.manifests.Save(ctx, doc); err != nil {
		return result, fmt.Errorf("save manifest: %w", err)
	}

	result.ManifestWritten = true

	return result, nil
}

// releaseRequired combines the version check with forced releases.
func (u *Updater) releaseRequired(pkg *addon.Package, opts UpdateOptions) bool {
	return u.NeedsUpdate(pkg.ID, pkg.Version) ||
		opts.ForceAll ||
		(opts.ForceID != "" && opts.ForceID == pkg.ID)
}
