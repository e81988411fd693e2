// Command chipctl detects, probes and serves accelerator chips.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/chiplink/chipctl/cmd"
)

func main() {
	atexit.Exit(cmd.Execute())
}
