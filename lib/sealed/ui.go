// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"filippo.io/age/plugin"
	"golang.org/x/term"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/secret"
)

// controllingTerminal is where plugin prompts are shown. The agent's
// stdin and stdout belong to the shell that started it, and are often
// not a terminal at all once it is backgrounded.
const controllingTerminal = "/dev/tty"

// TerminalUI returns plugin callbacks that log informational messages
// and ask questions (PINs, touch confirmations) on the controlling
// terminal. When no terminal is available, prompts fail and the
// plugin reports the identity as unusable, which surfaces as a
// decryption failure for that request.
func TerminalUI(logger *slog.Logger) *plugin.ClientUI {
	return &plugin.ClientUI{
		DisplayMessage: func(name, message string) error {
			logger.Info("age plugin message", "plugin", name, "message", message)
			return nil
		},
		RequestValue: func(name, prompt string, hidden bool) (string, error) {
			return promptTerminal(name, prompt, hidden)
		},
		Confirm: func(name, prompt, yes, no string) (bool, error) {
			if no == "" {
				no = "cancel"
			}
			answer, err := promptTerminal(name, fmt.Sprintf("%s [%s/%s]", prompt, yes, no), false)
			if err != nil {
				return false, err
			}
			return strings.EqualFold(strings.TrimSpace(answer), yes), nil
		},
		WaitTimer: func(name string) {
			logger.Info("waiting on age plugin, touch the token if it is blinking", "plugin", name)
		},
	}
}

func promptTerminal(name, prompt string, hidden bool) (string, error) {
	tty, err := os.OpenFile(controllingTerminal, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("opening %s for %s prompt: %w", controllingTerminal, name, err)
	}
	defer tty.Close()

	descriptor := int(tty.Fd())
	if !term.IsTerminal(descriptor) {
		return "", fmt.Errorf("%s is not a terminal", controllingTerminal)
	}

	fmt.Fprintf(tty, "[%s] %s: ", name, prompt)
	if hidden {
		value, err := term.ReadPassword(descriptor)
		fmt.Fprintln(tty)
		if err != nil {
			return "", fmt.Errorf("reading %s prompt: %w", name, err)
		}
		defer secret.Zero(value)
		return string(value), nil
	}

	line, err := bufio.NewReader(tty).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading %s prompt: %w", name, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
