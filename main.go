// ./main.go
package main

import (
	"github.com/ch-sander/zotero-rdf-server/cmd"
)

// main is the entry point for the zotero-rdf-server application.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
