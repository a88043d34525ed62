// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration for the agent's control
// socket. Every request and response on that socket goes through
// these modes so encoding is identical on both ends.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types carried on the control socket use `json` struct tags. The CLI
// prints the same values as JSON, and fxamacker/cbor falls back to
// `json` tags when no `cbor` tag is present, so one tag names the
// field in both formats.
package codec
