// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentproto

import "fmt"

// Message type numbers from draft-miller-ssh-agent section 5.1.
const (
	MsgFailure           byte = 5
	MsgRequestIdentities byte = 11
	MsgIdentitiesAnswer  byte = 12
	MsgSignRequest       byte = 13
	MsgSignResponse      byte = 14
	MsgExtension         byte = 27
)

// Signature flags carried by a sign request. Ed25519 ignores them; they
// are surfaced so logs show what the client asked for.
const (
	SignatureFlagRSASHA256 uint32 = 2
	SignatureFlagRSASHA512 uint32 = 4
)

// FlagNames names the bits set in flags, in bit order. Unknown bits
// appear as hex.
func FlagNames(flags uint32) []string {
	var names []string
	for bit := uint32(1); bit != 0; bit <<= 1 {
		if flags&bit == 0 {
			continue
		}
		switch bit {
		case SignatureFlagRSASHA256:
			names = append(names, "rsa-sha2-256")
		case SignatureFlagRSASHA512:
			names = append(names, "rsa-sha2-512")
		default:
			names = append(names, fmt.Sprintf("%#x", bit))
		}
	}
	return names
}

// Request is a decoded client-to-agent message. The concrete type is
// one of [ListIdentities], [SignRequest], or [Unsupported].
type Request interface {
	// Kind is a short stable label for logs and metrics.
	Kind() string
}

// ListIdentities asks for every public key the agent can sign with.
type ListIdentities struct{}

// SignRequest asks the agent to sign Data with the private key whose
// public key wire encoding is KeyBlob.
type SignRequest struct {
	KeyBlob []byte
	Data    []byte
	Flags   uint32
}

// Unsupported is a well-framed request of a type this agent does not
// implement (adding keys, locking, extensions, ...).
type Unsupported struct {
	Type    byte
	Payload []byte
}

func (ListIdentities) Kind() string { return "list_identities" }
func (SignRequest) Kind() string    { return "sign" }
func (Unsupported) Kind() string    { return "unsupported" }

// String names the request type without its payload. Unsupported
// payloads can carry key material (add-identity), so they never reach
// a log line.
func (u Unsupported) String() string {
	return fmt.Sprintf("unsupported request type %d (%d bytes)", u.Type, len(u.Payload))
}

// Response is an agent-to-client message. The concrete type is one of
// [IdentitiesAnswer], [SignResponse], or [Failure].
type Response interface {
	// Kind is a short stable label for logs and metrics.
	Kind() string
}

// IdentityEntry is one public key in an identities answer.
type IdentityEntry struct {
	KeyBlob []byte
	Comment string
}

// IdentitiesAnswer lists public identities in index order.
type IdentitiesAnswer struct {
	Identities []IdentityEntry
}

// SignResponse carries a signature blob: the wire encoding of
// string(algorithm) || string(raw signature).
type SignResponse struct {
	Signature []byte
}

// Failure is the generic negative response. It has no payload.
type Failure struct{}

func (IdentitiesAnswer) Kind() string { return "identities_answer" }
func (SignResponse) Kind() string     { return "sign_response" }
func (Failure) Kind() string          { return "failure" }
