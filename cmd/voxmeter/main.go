package main

import (
	"fmt"
	"os"

	"voxmeter/cmd/voxmeter/cmd"
	"voxmeter/internal/config"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration warning: %v\n", err)
	}
	// Malformed keys are reported early; missing keys only disable a provider.
	if _, err := config.GetAPIKeys(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration warning: %v\n", err)
	}

	cmd.Execute()
}
