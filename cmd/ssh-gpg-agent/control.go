// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/config"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/process"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/service"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/sshagent"
)

// controlFlags are shared by the status and identities subcommands.
type controlFlags struct {
	set        *pflag.FlagSet
	configPath string
	socketPath string
	outputJSON bool
}

func newControlFlags(name string, stderr io.Writer) *controlFlags {
	flags := &controlFlags{set: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	flags.set.SetOutput(stderr)
	flags.set.StringVar(&flags.configPath, "config", "", "config file naming the control socket")
	flags.set.StringVar(&flags.socketPath, "control-socket", "", "control socket path (overrides the config file)")
	flags.set.BoolVar(&flags.outputJSON, "json", false, "output as JSON")
	return flags
}

// parse returns a client for the control socket, or nil with a nil
// error when --help was requested.
func (f *controlFlags) parse(args []string) (*service.Client, error) {
	if err := f.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, nil
		}
		return nil, err
	}
	if f.set.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", f.set.Arg(0))
	}

	socketPath := f.socketPath
	if socketPath == "" {
		var cfg *config.Config
		var err error
		if f.configPath != "" {
			cfg, err = config.LoadFile(f.configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return nil, err
		}
		socketPath = cfg.ControlSocketPath
	}
	if socketPath == "" {
		return nil, errors.New("no control socket: pass --control-socket or set control_socket_path in the config file")
	}
	return service.NewClient(socketPath), nil
}

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newControlFlags("status", stderr)
	client, err := flags.parse(args)
	if err != nil || client == nil {
		return err
	}

	var status sshagent.Status
	if err := queryAgent(ctx, client, "status", &status); err != nil {
		return err
	}
	if flags.outputJSON {
		return writeJSON(stdout, status)
	}

	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "version\t%s\n", status.Version)
	fmt.Fprintf(writer, "socket\t%s\n", status.SocketPath)
	fmt.Fprintf(writer, "key directory\t%s\n", status.KeyDirectory)
	fmt.Fprintf(writer, "backend\t%s\n", status.Backend)
	fmt.Fprintf(writer, "uptime\t%ds\n", status.UptimeSeconds)
	fmt.Fprintf(writer, "sessions\t%d total, %d active\n", status.SessionsTotal, status.SessionsActive)
	return writer.Flush()
}

func runIdentities(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newControlFlags("identities", stderr)
	client, err := flags.parse(args)
	if err != nil || client == nil {
		return err
	}

	var identities []sshagent.IdentityInfo
	if err := queryAgent(ctx, client, "identities", &identities); err != nil {
		return err
	}
	if flags.outputJSON {
		if identities == nil {
			identities = []sshagent.IdentityInfo{}
		}
		return writeJSON(stdout, identities)
	}

	if len(identities) == 0 {
		fmt.Fprintln(stdout, "no identities")
		return nil
	}
	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tTYPE\tFINGERPRINT\tCOMMENT")
	for _, found := range identities {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", found.Name, found.KeyType, found.Fingerprint, found.Comment)
	}
	return writer.Flush()
}

// exitNoAgent is the exit status when no agent answers on the control
// socket, the same status ssh-add uses when it cannot reach an agent.
const exitNoAgent = 2

func queryAgent(ctx context.Context, client *service.Client, action string, result any) error {
	err := client.Call(ctx, action, nil, result)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("querying agent: %w", err)
	if errors.Is(err, service.ErrUnreachable) {
		return &process.ExitError{Code: exitNoAgent, Err: err}
	}
	return err
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
