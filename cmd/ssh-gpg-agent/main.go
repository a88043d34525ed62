// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/process"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return runServe(ctx, args, stdout, stderr)
	}

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "serve":
		return runServe(ctx, rest, stdout, stderr)
	case "status":
		return runStatus(ctx, rest, stdout, stderr)
	case "identities":
		return runIdentities(ctx, rest, stdout, stderr)
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "seal":
		return runSeal(rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "ssh-gpg-agent %s\n", version.Full())
		return nil
	case "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: ssh-gpg-agent [subcommand] [flags]

Subcommands:
  serve        Run the agent (default)
  status       Query a running agent's control socket
  identities   List the identities a running agent offers
  keygen       Create an age identity file for the age backend
  seal         Encrypt a key or passphrase file for the age backend
  version      Print version information

Run 'ssh-gpg-agent <subcommand> --help' for subcommand flags.
`)
}
