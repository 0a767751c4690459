// Command tlcfetch mirrors NYC TLC trip archives and taxi-zone reference
// data into a local directory tree.
package main

import (
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	ExitSuccess     = 0
	ExitFailed      = 1
	ExitInvalidArgs = 2
	ExitAborted     = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitInvalidArgs
	}

	command, cmdArgs := args[0], args[1:]

	switch command {
	case "list", "estimate", "verify", "download":
		return runPipeline(command, cmdArgs, stdout, stderr)
	case "history":
		return runHistory(cmdArgs, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return ExitInvalidArgs
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: tlcfetch <command> [options]

Commands:
  list      Print the resolved catalog without touching the network
  estimate  Print the expected download size of a selection
  download  Fetch, verify and lay out every selected file
  verify    Check local files without touching the network
  history   Show recent runs recorded in the history store

Run 'tlcfetch <command> -h' for command-specific help.

Exit codes: 0 success, 1 a resource failed, 2 invalid arguments, 3 run aborted.`)
}
