// relaylens keeps a resilient WebSocket connection to an event relay and
// exposes a local API and dashboard for inspecting it.
package main

import (
	"os"

	"github.com/relaylens/relaylens/cmd"
)

// Injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
