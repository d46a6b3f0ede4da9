// Command repoupdate updates a local Kodi add-on repository from an add-on source tree.
package main

import "github.com/oshokin/repoupdate/cmd/repoupdate/cmd"

func main() {
	cmd.Execute()
}
