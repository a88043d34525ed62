// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentproto encodes and decodes the SSH agent wire protocol
// (draft-miller-ssh-agent). It knows nothing about identities or
// cryptography: it turns frames into [Request] values and [Response]
// values into frames.
//
// A frame is a 4-byte big-endian length followed by that many payload
// bytes. The first payload byte is the message type. [ReadFrame] bounds
// the length by [MaxFrameSize] so a hostile client cannot make the
// agent allocate arbitrary memory.
//
// Message bodies are marshaled with golang.org/x/crypto/ssh, using
// sshtype struct tags the same way x/crypto/ssh/agent does.
//
// Decoding failures that leave the stream in an unknown state wrap
// [ErrProtocol]. Well-framed requests with an unrecognized type decode
// to [Unsupported] so the session can answer with a failure and keep
// going.
package agentproto
