// Command skillgate is the hook entry point and management CLI.
package main

import (
	"fmt"
	"os"

	"github.com/gzhole/skillgate/internal/cli"
	skerrors "github.com/gzhole/skillgate/internal/errors"
)

func main() {
	err := cli.Execute()
	if err == nil {
		return
	}

	var exitErr *skerrors.ExitError
	if skerrors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "skillgate: %v\n", exitErr.Err)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "skillgate: %v\n", err)
	os.Exit(skerrors.ExitFailure)
}
