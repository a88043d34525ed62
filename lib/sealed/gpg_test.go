// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeGPG writes an executable shell script standing in for gpg.
func fakeGPG(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gpg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing fake gpg: %v", err)
	}
	return path
}

func TestGPG_Decrypt(t *testing.T) {
	backend := &GPG{Binary: fakeGPG(t, "cat")}

	plaintext, err := backend.Decrypt(t.Context(), []byte("correct horse battery staple\n"))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer plaintext.Close()

	if got := string(plaintext.Bytes()); got != "correct horse battery staple\n" {
		t.Errorf("plaintext = %q", got)
	}
}

func TestGPG_Arguments(t *testing.T) {
	backend := &GPG{
		Binary:    fakeGPG(t, `echo "$@"`),
		ExtraArgs: []string{"--homedir", "/keys"},
	}

	output, err := backend.Decrypt(t.Context(), []byte("x"))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer output.Close()

	want := "--homedir /keys --batch --quiet --decrypt\n"
	if got := string(output.Bytes()); got != want {
		t.Errorf("arguments = %q, want %q", got, want)
	}
}

func TestGPG_Failure(t *testing.T) {
	backend := &GPG{Binary: fakeGPG(t, "echo 'gpg: decryption failed: No secret key' >&2\nexit 2")}

	_, err := backend.Decrypt(t.Context(), []byte("x"))
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
	if !strings.Contains(err.Error(), "status 2") || !strings.Contains(err.Error(), "No secret key") {
		t.Errorf("error %q does not carry exit status and gpg diagnostics", err)
	}
}

func TestGPG_FailureDiscardsPartialOutput(t *testing.T) {
	backend := &GPG{Binary: fakeGPG(t, "echo partial\nexit 1")}

	plaintext, err := backend.Decrypt(t.Context(), []byte("x"))
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
	if plaintext != nil {
		t.Error("failed decryption returned a buffer")
	}
	if strings.Contains(err.Error(), "partial") {
		t.Errorf("error %q leaks stdout", err)
	}
}

func TestGPG_EmptyOutput(t *testing.T) {
	backend := &GPG{Binary: fakeGPG(t, "exit 0")}

	if _, err := backend.Decrypt(t.Context(), []byte("x")); !errors.Is(err, ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
}

func TestGPG_OutputTooLarge(t *testing.T) {
	backend := &GPG{
		Binary: fakeGPG(t, "head -c 100000 /dev/zero"),
		Limit:  1024,
	}

	_, err := backend.Decrypt(t.Context(), []byte("x"))
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("error %q does not mention the limit", err)
	}
}

func TestGPG_MissingBinary(t *testing.T) {
	backend := &GPG{Binary: filepath.Join(t.TempDir(), "no-such-gpg")}

	if _, err := backend.Decrypt(t.Context(), []byte("x")); !errors.Is(err, ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
}

func TestGPG_ContextCancelled(t *testing.T) {
	backend := &GPG{Binary: fakeGPG(t, "exec sleep 10")}

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := backend.Decrypt(ctx, []byte("x"))
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Decrypt took %v after cancellation", elapsed)
	}
}

func TestGPG_Extension(t *testing.T) {
	var backend Decrypter = &GPG{}
	if backend.Extension() != "gpg" {
		t.Errorf("Extension = %q, want gpg", backend.Extension())
	}
}

func TestBoundedWriter(t *testing.T) {
	writer := &boundedWriter{limit: 5}
	for _, chunk := range []string{"abc", "defg", "hij"} {
		n, err := writer.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if writer.String() != "abcde" {
		t.Errorf("kept %q, want %q", writer.String(), "abcde")
	}
}
