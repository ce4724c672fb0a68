// netstackctl is the CLI client for netstackd: reads its local stats
// snapshot and validates its configuration file.
package main

import (
	"github.com/dantte-lp/netstackd/cmd/netstackctl/commands"
)

func main() {
	commands.Execute()
}
