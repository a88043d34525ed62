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
	"github.com/bureau-foundation/ssh-gpg-agent/lib/secret"
)

// runSeal age-encrypts a private key or passphrase file so the age
// backend can decrypt it:
//
//	ssh-gpg-agent seal --recipient age1... ~/.ssh/id_ed25519 ~/.ssh/id_ed25519.age
//
// The input is read into protected memory. The output is written with
// mode 0600 and must not already exist.
func runSeal(args []string, stdout, stderr io.Writer) error {
	var (
		recipients []string
		armored    bool
	)
	set := pflag.NewFlagSet("seal", pflag.ContinueOnError)
	set.SetOutput(stderr)
	set.StringArrayVarP(&recipients, "recipient", "r", nil, "age, ssh, or plugin recipient (repeatable)")
	set.BoolVarP(&armored, "armor", "a", false, "write PEM-armored output")
	if err := set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if set.NArg() != 2 {
		return errors.New("usage: ssh-gpg-agent seal --recipient <recipient> [--armor] <input> <output>")
	}
	if len(recipients) == 0 {
		return errors.New("at least one --recipient is required")
	}
	inputPath, outputPath := set.Arg(0), set.Arg(1)

	parsed, err := sealed.ParseRecipients(recipients, nil)
	if err != nil {
		return err
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	plaintext, err := secret.NewFromReader(input, sealed.DefaultPlaintextLimit)
	input.Close()
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}
	defer plaintext.Close()

	ciphertext, err := sealed.Encrypt(plaintext.Bytes(), parsed, armored)
	if err != nil {
		return err
	}

	output, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := output.Write(ciphertext); err != nil {
		output.Close()
		os.Remove(outputPath)
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	if err := output.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}

	fmt.Fprintf(stdout, "sealed %s to %d recipient(s) in %s\n", inputPath, len(parsed), outputPath)
	return nil
}
