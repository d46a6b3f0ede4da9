// Package manifest persists the repository index, addons.xml, and its
// addons.xml.md5 checksum.
//
// FileRepository loads the published manifest into an Index for version
// lookups and writes a freshly built Document back together with the hex MD5
// of the exact bytes written. Both files are replaced atomically.
package manifest
