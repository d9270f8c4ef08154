// Command timberline runs the woodcutter colony simulation.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/talgya/timberline/cmd/timberline/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Secrets such as TIMBERLINE_ADMIN_KEY may live in a local .env file.
	_ = godotenv.Load()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
