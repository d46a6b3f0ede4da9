package manifest

import (
	"crypto/md5" //nolint:gosec // The repository format mandates MD5.
	"encoding/hex"
	"fmt"

	"github.com/beevik/etree"

	"github.com/oshokin/repoupdate/internal/domain/addon"
)

const (
	// Filename is the manifest file in the repository root.
	Filename = "addons.xml"

	// ChecksumFilename holds the hex MD5 of the manifest bytes.
	ChecksumFilename = Filename + ".md5"

	rootTag  = "addons"
	entryTag = "addon"
)

// Index maps add-on identifiers to the versions listed in a published manifest.
type Index struct {
	versions map[string]addon.Version
}

// Version returns the published version of id.
func (i *Index) Version(id string) (addon.Version, bool) {
	if i == nil {
		return nil, false
	}

	v, ok := i.versions[id]

	return v, ok
}

// Len returns the number of indexed add-ons.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}

	return len(i.versions)
}

// Document is a manifest under construction. Entries keep insertion order.
type Document struct {
	doc  *etree.Document
	root *etree.Element
}

// NewDocument returns an empty <addons> document.
func NewDocument() *Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	return &Document{
		doc:  doc,
		root: doc.CreateElement(rootTag),
	}
}

// Append adds a descriptor element as the next manifest entry.
func (d *Document) Append(descriptor *etree.Element) {
	d.root.AddChild(descriptor)
}

// Len returns the number of entries.
func (d *Document) Len() int {
	return len(d.root.ChildElements())
}

// Bytes serializes the document. Equal documents always produce equal bytes.
func (d *Document) Bytes() ([]byte, error) {
	data, err := d.doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize manifest: %w", err)
	}

	return data, nil
}

// Checksum returns the hex-encoded MD5 digest of data.
func Checksum(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // See import.

	return hex.EncodeToString(sum[:])
}

// parseIndex builds an Index from a manifest document.
func parseIndex(doc *etree.Document) (*Index, error) {
	root := doc.Root()
	if root == nil || root.Tag != rootTag {
		return nil, fmt.Errorf("%w: root element is not <%s>", ErrMalformed, rootTag)
	}

	index := &Index{
		versions: make(map[string]addon.Version, len(root.ChildElements())),
	}

	for _, entry := range root.SelectElements(entryTag) {
		id := entry.SelectAttrValue("id", "")
		if id == "" {
			return nil, fmt.Errorf("%w: entry without id", ErrMalformed)
		}

		version, err := addon.ParseVersion(entry.SelectAttrValue("version", ""))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, id, err)
		}

		if _, seen := index.versions[id]; seen {
			continue
		}

		index.versions[id] = version
	}

	return index, nil
}
