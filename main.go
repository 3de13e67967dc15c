// The main package for the rally-ingest CLI.
package main

import "github.com/JakeFAU/rally-results-ingest/cmd"

func main() {
	cmd.Execute()
}
