package main

import (
	"os"

	"github.com/PolarWolf314/lockbox/cmd"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(kerrors.ExitCode(err))
	}
}
