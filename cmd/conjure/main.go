// Command conjure compiles source trees with an optional code generation pass
package main

import (
	"os"

	"github.com/poltergeist/conjure/pkg/cli"
)

// Set by the linker
var version = "dev"

func main() {
	if err := cli.ExecuteWithVersion(version); err != nil {
		os.Exit(1)
	}
}
