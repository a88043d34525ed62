// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/secret"
)

// GPGExtension is the ciphertext extension consumed by [GPG].
const GPGExtension = "gpg"

// maxStderr bounds how much gpg diagnostic output is kept for error
// messages.
const maxStderr = 4096

// GPG decrypts by running gpg. Stdin carries the ciphertext and stdout
// the plaintext. Status chatter on stderr is kept only for the error
// message when gpg fails.
type GPG struct {
	// Binary is the gpg executable, resolved through PATH if it has
	// no slash. Empty means "gpg".
	Binary string

	// ExtraArgs are inserted before the fixed decrypt arguments,
	// e.g. --homedir or --try-secret-key.
	ExtraArgs []string

	// Limit caps the plaintext size. Zero means DefaultPlaintextLimit.
	Limit int

	// Logger receives debug records for each invocation. May be nil.
	Logger *slog.Logger
}

// Extension returns "gpg".
func (g *GPG) Extension() string { return GPGExtension }

// Decrypt runs gpg --batch --quiet --decrypt on ciphertext.
func (g *GPG) Decrypt(ctx context.Context, ciphertext []byte) (*secret.Buffer, error) {
	binary := g.Binary
	if binary == "" {
		binary = "gpg"
	}
	args := append(append([]string{}, g.ExtraArgs...), "--batch", "--quiet", "--decrypt")

	command := exec.CommandContext(ctx, binary, args...)
	command.Stdin = bytes.NewReader(ciphertext)
	stderr := &boundedWriter{limit: maxStderr}
	command.Stderr = stderr
	command.WaitDelay = time.Second

	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating gpg stdout pipe: %v", ErrDecryption, err)
	}

	start := time.Now()
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrDecryption, binary, err)
	}

	plaintext, readErr := secret.NewFromReader(stdout, plaintextLimit(g.Limit))
	if readErr != nil && command.Process != nil {
		// Stop a gpg that is still producing output we will not use.
		command.Process.Kill()
	}
	waitErr := command.Wait()

	if g.Logger != nil {
		g.Logger.Debug("gpg finished",
			"binary", binary,
			"duration", time.Since(start),
			"exit_code", command.ProcessState.ExitCode(),
		)
	}

	if waitErr != nil || readErr != nil {
		plaintext.Close()
		return nil, gpgError(ctx, waitErr, readErr, stderr.String())
	}
	return plaintext, nil
}

func gpgError(ctx context.Context, waitErr, readErr error, stderr string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: gpg: %v", ErrDecryption, ctx.Err())
	}
	if errors.Is(readErr, secret.ErrTooLarge) {
		return fmt.Errorf("%w: gpg output exceeds plaintext limit", ErrDecryption)
	}

	detail := strings.TrimSpace(stderr)
	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr) && detail != "":
		return fmt.Errorf("%w: gpg exited with status %d: %s", ErrDecryption, exitErr.ExitCode(), detail)
	case waitErr != nil:
		return fmt.Errorf("%w: gpg: %v", ErrDecryption, waitErr)
	default:
		return fmt.Errorf("%w: reading gpg output: %v", ErrDecryption, readErr)
	}
}

// boundedWriter keeps the first limit bytes written and silently
// discards the rest. Write never fails, so gpg is never blocked on a
// full stderr pipe.
type boundedWriter struct {
	buffer bytes.Buffer
	limit  int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	if room := w.limit - w.buffer.Len(); room > 0 {
		w.buffer.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}

func (w *boundedWriter) String() string {
	return w.buffer.String()
}
