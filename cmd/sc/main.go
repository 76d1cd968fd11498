package main

import (
	"fmt"
	"os"

	"github.com/alexisbeaulieu97/sc/internal/logger"
)

func main() {
	appLogger, err := logger.New(logger.Options{Level: "info", Component: "sc", Layer: "cli"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create application logger: %v\n", err)
		os.Exit(1)
	}

	rootCmd := newRootCmd(appLogger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
