package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/xamun-dev/xamun/internal/orchestrator"
)

// Exit codes for different failure modes
const (
	ExitSuccess      = 0 // Command completed
	ExitError        = 1 // Configuration or runtime error
	ExitTaskNotFound = 2 // A task id named on the command line does not exist
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, orchestrator.ErrTaskNotFound):
		return ExitTaskNotFound
	default:
		return ExitError
	}
}
