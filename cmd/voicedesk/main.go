// Package main provides the entry point for the voicedesk gateway CLI.
package main

import (
	"fmt"
	"os"

	"github.com/voicedesk-ai/voicedesk/cmd/voicedesk/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
