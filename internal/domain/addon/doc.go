// Package addon models a single add-on found in the source tree.
//
// A Package is built from one addon.xml descriptor. It exposes the add-on
// identifier, its dotted integer Version and the source directory, and keeps
// the descriptor root element untouched so it can be re-emitted into the
// repository manifest.
package addon
