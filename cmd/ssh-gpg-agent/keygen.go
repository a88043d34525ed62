// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/sealed"
)

// runKeygen writes a new age X25519 identity file for the age backend
// and prints its recipient for use with seal:
//
//	ssh-gpg-agent keygen ~/.config/ssh-gpg-agent/identities.txt
//
// The file is written with mode 0600 and must not already exist. The
// private key goes only to the file.
func runKeygen(args []string, stdout, stderr io.Writer) error {
	set := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	set.SetOutput(stderr)
	if err := set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if set.NArg() != 1 {
		return errors.New("usage: ssh-gpg-agent keygen <identities-file>")
	}
	outputPath := set.Arg(0)

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	output, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if err := writeIdentity(output, keypair); err != nil {
		output.Close()
		os.Remove(outputPath)
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	if err := output.Close(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}

	fmt.Fprintln(stdout, keypair.PublicKey)
	return nil
}

// writeIdentity writes the key in age-keygen's file layout. The private
// key bytes go straight from protected memory to w.
func writeIdentity(w io.Writer, keypair *sealed.Keypair) error {
	if _, err := fmt.Fprintf(w, "# public key: %s\n", keypair.PublicKey); err != nil {
		return err
	}
	if _, err := w.Write(keypair.PrivateKey.Bytes()); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
