package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"ebookconverter/internal/converter"
	"ebookconverter/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warn: unable to load .env: %v\n", err)
	}

	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps command errors to process status. A held run lock exits 2 so
// cron wrappers can tell an overlapping run from a failed one.
func exitCode(err error) int {
	if errors.Is(err, converter.ErrAlreadyRunning) {
		return 2
	}
	return services.ExitCode(err)
}
