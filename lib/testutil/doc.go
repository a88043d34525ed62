// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] and [SocketPath] place sockets directly under /tmp,
// since t.TempDir can exceed the 108-byte sun_path limit under some
// build systems. [WaitForSocket] polls until a server has bound.
//
// [RequireReceive] is the one place tests wait on wall-clock
// timeouts.
//
// [GenerateEd25519] builds a keypair with its authorized_keys line and
// OpenSSH container, and [WriteFile] drops fixture files into a
// directory. Together they assemble the identity triples the agent
// discovers. [CapturingLogger] records log output so tests can check
// that secrets never reach it.
//
// Helpers call t.Fatalf on failure rather than returning errors.
package testutil
