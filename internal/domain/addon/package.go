package addon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
)

const (
	// DescriptorFilename is the per-add-on metadata file.
	DescriptorFilename = "addon.xml"

	// IgnoreFilename marks a directory that must not produce a package.
	IgnoreFilename = ".repoignore"

	idAttr      = "id"
	versionAttr = "version"
)

// ErrInvalidDescriptor is returned when a descriptor cannot be parsed or lacks id or version.
var ErrInvalidDescriptor = errors.New("invalid add-on descriptor")

// Package is one add-on discovered in the source tree. It is immutable after Load.
type Package struct {
	// ID is the unique add-on identifier.
	ID string
	// Version is the parsed version tuple.
	Version Version
	// VersionString is the version attribute exactly as written.
	VersionString string
	// Dir is the directory containing the descriptor.
	Dir string

	descriptor *etree.Element
}

// Load parses the descriptor at path.
// Parse failures and missing or malformed id/version attributes wrap ErrInvalidDescriptor;
// other read errors are returned as is.
func Load(path string) (*Package, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	doc := etree.NewDocument()
	if err = doc.ReadFromBytes(contents); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDescriptor, path, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: %s: no root element", ErrInvalidDescriptor, path)
	}

	id := root.SelectAttrValue(idAttr, "")
	if id == "" {
		return nil, fmt.Errorf("%w: %s: missing %s attribute", ErrInvalidDescriptor, path, idAttr)
	}

	versionString := root.SelectAttrValue(versionAttr, "")

	version, err := ParseVersion(versionString)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDescriptor, path, err)
	}

	return &Package{
		ID:            id,
		Version:       version,
		VersionString: versionString,
		Dir:           filepath.Dir(path),
		descriptor:    root,
	}, nil
}

// String returns "id-version", used in log lines and archive names.
func (p *Package) String() string {
	return p.ID + "-" + p.VersionString
}

// Descriptor returns a deep copy of the descriptor root element.
func (p *Package) Descriptor() *etree.Element {
	return p.descriptor.Copy()
}

// DescriptorPath returns the location of the descriptor file.
func (p *Package) DescriptorPath() string {
	return filepath.Join(p.Dir, DescriptorFilename)
}
