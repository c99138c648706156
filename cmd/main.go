package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `livedash - live plot dashboards for local producer processes

Usage:
  livedash <command> [options]

Commands:
  serve         Run the dashboard service
  status        Show status of a running service
  doctor        Diagnose configuration and connectivity
  init          Write a default config file
  hash-secret   Print the bcrypt hash of a shared secret
  demo          Stream example plots to a running service
  send          Send JSON-lines messages from stdin
  version       Print the version
Run 'livedash <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "status":
		return runStatus(args[2:], stdout, stderr)
	case "doctor":
		return runDoctor(args[2:], stdout, stderr)
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "hash-secret":
		return runHashSecret(args[2:], os.Stdin, stdout, stderr)
	case "demo":
		return runDemo(args[2:], stdout, stderr)
	case "send":
		return runSend(args[2:], os.Stdin, stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "livedash %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
