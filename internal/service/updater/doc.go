// Package updater brings a local add-on repository up to date with a source tree.
//
// An Updater walks the source tree for addon.xml descriptors, compares each
// add-on against the published addons.xml, releases the new or newer ones
// and regenerates the manifest and its checksum from everything it found.
package updater
