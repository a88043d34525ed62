// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the agent's auxiliary servers.
//
//   - [SocketServer] answers CBOR requests on a unix socket, one
//     request per connection, routed by an "action" field. The agent
//     uses it for its control socket (status, identities).
//   - [Client] is the matching caller, used by the CLI subcommands.
//   - [HTTPServer] serves a route table on TCP with graceful
//     shutdown. The agent uses it for the Prometheus endpoint.
//
// Both servers follow the same lifecycle: construct, register, call
// Serve(ctx), cancel ctx to stop. Serve returns after in-flight
// requests drain.
//
// Access control is the filesystem: sockets are created mode 0600, so
// only the agent's own user can connect. Nothing on the control socket
// is secret in any case; it carries public keys and counters.
package service
