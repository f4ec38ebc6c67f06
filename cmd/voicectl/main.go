// Package main is the entry point of voicectl, the command line client of
// the voice dashboard.
//
// Usage:
//
//	voicectl [flags] <command> [subcommand] [args]
//
// Commands:
//
//	login, logout, whoami  - Supabase account session
//	record                 - Capture a clip from the microphone and save it
//	list, show, play       - Browse and play saved recordings
//	upload, update, delete - Manage recordings
//	download               - Save the audio of a recording locally
//	import                 - Import podcast episodes as recordings
//	profile                - Profile name and avatar
//	replicate              - Copy recordings from MongoDB to Postgres
//	config                 - Show or initialize configuration
package main

import (
	"fmt"
	"os"

	"voice-dashboard/cmd/voicectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
