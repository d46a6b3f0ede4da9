// Package release produces the artifacts of one add-on version.
//
// Build zips the add-on sources under an <id>/ top-level folder and copies
// the descriptor, icon, fanart and versioned changelog next to the archive
// in <repository>/<id>/.
package release
