// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sshagent serves the SSH agent protocol on a unix socket,
// signing with keys that exist in plaintext only for the duration of
// one request.
//
// [Server.Serve] accepts connections and runs one session goroutine
// per connection. A session reads a request, answers it, and repeats
// until the client disconnects. Requests on one connection are handled
// strictly in order; sessions never share mutable state.
//
// A sign request walks the full lifecycle: rescan the key directory,
// find the identity whose public key blob matches byte for byte, read
// its ciphertext, decrypt it through the configured [sealed.Decrypter],
// sign, and release the plaintext. Nothing decrypted survives the
// request. Every failure along that path becomes a FAILURE reply and
// the session continues. Only a corrupt frame ends the session, with
// no reply, since nothing later on that stream can be trusted.
//
// Listing identities rescans the directory as well, so new or removed
// keys are visible on the next request without restarting the agent.
package sshagent
