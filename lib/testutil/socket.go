// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"net"
	"os"
	"runtime"
	"testing"
)

// WaitForSocket blocks until a file exists at path, or fails the test
// when the test context ends.
func WaitForSocket(t testing.TB, path string) {
	t.Helper()
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if t.Context().Err() != nil {
			t.Fatalf("socket %s did not appear before test context expired", path)
		}
		runtime.Gosched()
	}
}

// StaleSocket leaves a socket file at path with nothing listening, the
// way a crashed server does.
func StaleSocket(t testing.TB, path string) {
	t.Helper()
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("creating stale socket: %v", err)
	}
	listener.SetUnlinkOnClose(false)
	listener.Close()
}
