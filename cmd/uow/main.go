// Command uow validates CUE entity models and runs unit-of-work scenarios
// against SQLite.
package main

import (
	"os"

	"github.com/roach88/uow/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	os.Exit(cli.GetExitCode(err))
}
