package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printMainUsage(stdout)
		return 0
	}

	switch args[0] {
	case "daemon":
		return runLoop("daemon", args[1:], false, stderr)
	case "once":
		return runLoop("once", args[1:], true, stderr)
	case "config":
		return runConfig(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printMainUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printMainUsage(stderr)
		return 2
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: wintopo <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Watch the display layout and keep windows in place (foreground)")
	fmt.Fprintln(w, "  once                Run a single reconciliation pass and exit")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate the rule file")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'wintopo <command> --help' for command-specific options.")
}
