// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh/agent"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/config"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/process"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/sealed"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/sshagent"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/testutil"
)

func TestRun_UnknownSubcommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), []string{"frobnicate"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "frobnicate") {
		t.Fatalf("run = %v, want unknown subcommand error", err)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}

func TestRun_Version(t *testing.T) {
	for _, args := range [][]string{{"version"}, {"--version"}, {"serve", "--version"}} {
		var stdout, stderr bytes.Buffer
		if err := run(t.Context(), args, &stdout, &stderr); err != nil {
			t.Fatalf("run %v: %v", args, err)
		}
		if !strings.HasPrefix(stdout.String(), "ssh-gpg-agent ") {
			t.Errorf("run %v printed %q", args, stdout.String())
		}
	}
}

func TestServe_InvalidConfiguration(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), []string{
		"--backend", "rot13",
		"--log-level", "loud",
	}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected a validation error")
	}
	for _, want := range []string{"backend", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if stdout.Len() != 0 {
		t.Errorf("printed %q before failing", stdout.String())
	}
}

func TestServe_UnexpectedArgument(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(t.Context(), []string{"serve", "extra"}, &stdout, &stderr); err == nil {
		t.Fatal("expected an error for a positional argument")
	}
}

// TestServe_EndToEnd creates an age identity with keygen, seals a
// passphrase to it with seal, runs the agent with the age backend,
// signs through the agent socket, and queries the control socket.
func TestServe_EndToEnd(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	directory := t.TempDir()
	const passphrase = "correct horse battery staple"

	identitiesFile := filepath.Join(t.TempDir(), "identities.txt")
	var keygenOut, keygenErr bytes.Buffer
	if err := run(t.Context(), []string{"keygen", identitiesFile}, &keygenOut, &keygenErr); err != nil {
		t.Fatalf("keygen: %v (stderr %q)", err, keygenErr.String())
	}
	recipient := strings.TrimSpace(keygenOut.String())

	key := testutil.GenerateEd25519(t, "deploy@example")
	testutil.WriteFile(t, directory, "web", key.ProtectedOpenSSH(t, passphrase))
	testutil.WriteFile(t, directory, "web.pub", key.AuthorizedKey)
	plaintextPath := testutil.WriteFile(t, t.TempDir(), "passphrase", []byte(passphrase+"\n"))

	var sealOut, sealErr bytes.Buffer
	if err := run(t.Context(), []string{
		"seal", "--recipient", recipient, plaintextPath, filepath.Join(directory, "web.age"),
	}, &sealOut, &sealErr); err != nil {
		t.Fatalf("seal: %v (stderr %q)", err, sealErr.String())
	}

	socketPath := testutil.SocketPath(t, "agent.sock")
	controlPath := testutil.SocketPath(t, "control.sock")
	stdout := &testutil.LogBuffer{}
	stderr := &testutil.LogBuffer{}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{
			"serve",
			"--socket", socketPath,
			"--key-dir", directory,
			"--backend", "age",
			"--age-identities", identitiesFile,
			"--control-socket", controlPath,
			"--metrics-listen", "127.0.0.1:0",
			"--log-level", "debug",
		}, stdout, stderr)
	}()
	testutil.WaitForSocket(t, socketPath)
	testutil.WaitForSocket(t, controlPath)

	if want := "SSH_AUTH_SOCK=" + socketPath + "; export SSH_AUTH_SOCK;\n"; stdout.String() != want {
		t.Errorf("stdout = %q, want %q", stdout.String(), want)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dialing agent: %v", err)
	}
	defer conn.Close()
	client := agent.NewClient(conn)

	keys, err := client.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0].Comment != "deploy@example" {
		t.Fatalf("List = %v, want the web identity", keys)
	}

	data := []byte("session-identifier")
	signature, err := client.Sign(key.Public, data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := key.Public.Verify(data, signature); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}

	var statusOut, statusErr bytes.Buffer
	if err := run(t.Context(), []string{"status", "--control-socket", controlPath, "--json"}, &statusOut, &statusErr); err != nil {
		t.Fatalf("status: %v", err)
	}
	var status sshagent.Status
	if err := json.Unmarshal(statusOut.Bytes(), &status); err != nil {
		t.Fatalf("decoding status %q: %v", statusOut.String(), err)
	}
	if status.Backend != "age" || status.SocketPath != socketPath || status.SessionsActive != 1 {
		t.Errorf("status = %+v", status)
	}

	var identitiesOut, identitiesErr bytes.Buffer
	if err := run(t.Context(), []string{"identities", "--control-socket", controlPath}, &identitiesOut, &identitiesErr); err != nil {
		t.Fatalf("identities: %v", err)
	}
	if !strings.Contains(identitiesOut.String(), "web") || !strings.Contains(identitiesOut.String(), "SHA256:") {
		t.Errorf("identities output = %q", identitiesOut.String())
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 10*time.Second, "waiting for serve to return"); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if _, err := os.Stat(socketPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("agent socket not removed: %v", err)
	}
	if _, err := os.Stat(controlPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("control socket not removed: %v", err)
	}

	logs := stderr.String()
	if !strings.Contains(logs, `"key_types":["ssh-ed25519"]`) {
		t.Errorf("startup line does not list key types:\n%s", logs)
	}
	if !strings.Contains(logs, `"msg":"signed"`) {
		t.Errorf("sign not logged:\n%s", logs)
	}
	if strings.Contains(logs, passphrase) || strings.Contains(logs, string(data)) {
		t.Error("logs contain secret material")
	}
}

func TestStatus_NoControlSocket(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), []string{"status"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "no control socket") {
		t.Fatalf("status = %v, want a missing control socket error", err)
	}
}

func TestStatus_AgentNotRunning(t *testing.T) {
	var stdout, stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "missing.sock")
	for _, subcommand := range []string{"status", "identities"} {
		err := run(t.Context(), []string{subcommand, "--control-socket", missing}, &stdout, &stderr)
		if err == nil {
			t.Fatalf("%s: expected an error with no agent listening", subcommand)
		}
		if code := process.ExitCode(err); code != 2 {
			t.Errorf("%s: exit code = %d, want 2 (%v)", subcommand, code, err)
		}
	}
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.txt")
	var stdout, stderr bytes.Buffer
	if err := run(t.Context(), []string{"keygen", path}, &stdout, &stderr); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	recipient := strings.TrimSpace(stdout.String())
	if !strings.HasPrefix(recipient, "age1") {
		t.Fatalf("printed %q, want an age1 recipient", stdout.String())
	}
	if strings.Contains(stdout.String()+stderr.String(), "AGE-SECRET-KEY-") {
		t.Error("private key printed to the terminal")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("identities file mode = %o, want 600", mode)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(contents), "# public key: "+recipient+"\n") ||
		!strings.Contains(string(contents), "AGE-SECRET-KEY-1") {
		t.Errorf("identities file = %q", contents)
	}

	identities, err := sealed.LoadAgeIdentities(path, nil)
	if err != nil {
		t.Fatalf("LoadAgeIdentities: %v", err)
	}
	recipients, err := sealed.ParseRecipients([]string{recipient}, nil)
	if err != nil {
		t.Fatalf("ParseRecipients: %v", err)
	}
	ciphertext, err := sealed.Encrypt([]byte("hunter2"), recipients, false)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypter, err := sealed.NewAge(identities...)
	if err != nil {
		t.Fatalf("NewAge: %v", err)
	}
	plaintext, err := decrypter.Decrypt(t.Context(), ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer plaintext.Close()
	if string(plaintext.Bytes()) != "hunter2" {
		t.Errorf("round trip = %q", plaintext.Bytes())
	}
}

func TestKeygen_Arguments(t *testing.T) {
	directory := t.TempDir()
	existing := testutil.WriteFile(t, directory, "existing", []byte("keep me"))

	for _, args := range [][]string{
		{},
		{filepath.Join(directory, "a"), filepath.Join(directory, "b")},
		{existing},
		{filepath.Join(directory, "absent", "identities.txt")},
	} {
		var stdout, stderr bytes.Buffer
		if err := run(t.Context(), append([]string{"keygen"}, args...), &stdout, &stderr); err == nil {
			t.Errorf("keygen %v succeeded", args)
		}
	}
	contents, err := os.ReadFile(existing)
	if err != nil || string(contents) != "keep me" {
		t.Errorf("existing file modified: %q, %v", contents, err)
	}
}

func TestSeal_Arguments(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	directory := t.TempDir()
	input := testutil.WriteFile(t, directory, "input", []byte("secret"))
	existing := testutil.WriteFile(t, directory, "existing", []byte("keep me"))

	tests := []struct {
		name string
		args []string
	}{
		{"no recipient", []string{input, filepath.Join(directory, "out1")}},
		{"missing output", []string{"--recipient", keypair.PublicKey, input}},
		{"bad recipient", []string{"--recipient", "nonsense", input, filepath.Join(directory, "out2")}},
		{"missing input", []string{"--recipient", keypair.PublicKey, filepath.Join(directory, "absent"), filepath.Join(directory, "out3")}},
		{"empty input", []string{"--recipient", keypair.PublicKey, testutil.WriteFile(t, directory, "empty", nil), filepath.Join(directory, "out4")}},
		{"output exists", []string{"--recipient", keypair.PublicKey, input, existing}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if err := run(t.Context(), append([]string{"seal"}, test.args...), &stdout, &stderr); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	contents, err := os.ReadFile(existing)
	if err != nil || string(contents) != "keep me" {
		t.Errorf("existing output modified: %q, %v", contents, err)
	}
}

func TestSeal_Armored(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	directory := t.TempDir()
	input := testutil.WriteFile(t, directory, "input", []byte("hunter2\n"))
	output := filepath.Join(directory, "input.age")

	var stdout, stderr bytes.Buffer
	if err := run(t.Context(), []string{"seal", "-r", keypair.PublicKey, "--armor", input, output}, &stdout, &stderr); err != nil {
		t.Fatalf("seal: %v", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("output mode = %v, want 0600", info.Mode().Perm())
	}
	ciphertext, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.HasPrefix(ciphertext, []byte("-----BEGIN AGE ENCRYPTED FILE-----")) {
		t.Errorf("output is not armored: %q", ciphertext[:min(len(ciphertext), 40)])
	}
}

func TestNewLogger_NonTerminalIsJSON(t *testing.T) {
	var buffer bytes.Buffer
	newLogger(&buffer, 0).Info("hello", "key", "value")
	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("log output %q is not JSON: %v", buffer.String(), err)
	}
	if record["msg"] != "hello" || record["key"] != "value" {
		t.Errorf("record = %v", record)
	}
}
