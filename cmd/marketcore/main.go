// Command marketcore loads, validates and exports market price data.
package main

import (
	"os"

	"marketcore/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
