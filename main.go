package main

import (
	"fmt"
	"os"

	"go.kibob.dev/kibob/internal/cmd"
	"go.kibob.dev/kibob/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.IsWarning(err) {
			fmt.Fprintf(os.Stderr, "warning: %s\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		os.Exit(errors.ExitCode(err))
	}
}
