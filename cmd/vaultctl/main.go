// Command vaultctl is the operator CLI for the backup engine,
// storage-config service, quota guard and scheduler tick ledger. It
// talks to the same vaultdb-backed services the application server
// embeds; it does not run the share upload pipeline, which has no
// sensible operator-driven shape.
package main

import "github.com/cloudvault/vaultd/cmd/vaultctl/cmd"

func main() {
	cmd.Execute()
}
