// Command listctl administers a listvault installation: categories,
// imports, exports and suppression entries, against the database directly
// or against a running API server with the remote subcommands.
package main

// version is set at build time.
var version = "dev"

func main() {
	execute(version)
}
