// Command scopevoice runs the document voice assistant without the desktop UI.
package main

import (
	"fmt"
	"os"

	"scopevoice/cmd/scopevoice/commands"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := commands.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
