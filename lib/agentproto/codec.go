// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/ssh"
)

// MaxFrameSize is the largest payload accepted in one frame. Matches
// OpenSSH's AGENT_MAX_LEN.
const MaxFrameSize = 256 * 1024

// ErrProtocol marks a framing or structural violation. The stream is
// no longer trustworthy after one; the session must close without
// responding.
var ErrProtocol = errors.New("agent protocol violation")

// signRequestMsg mirrors the SSH_AGENTC_SIGN_REQUEST body.
type signRequestMsg struct {
	KeyBlob []byte `sshtype:"13"`
	Data    []byte
	Flags   uint32
}

// identitiesAnswerMsg is the SSH_AGENT_IDENTITIES_ANSWER header. Keys
// holds the already-marshaled entries.
type identitiesAnswerMsg struct {
	NumKeys uint32 `sshtype:"12"`
	Keys    []byte `ssh:"rest"`
}

type identityEntryMsg struct {
	KeyBlob []byte
	Comment string
}

type signResponseMsg struct {
	SigBlob []byte `sshtype:"14"`
}

// MaxCommentLength bounds one comment in an identities answer.
// [FitIdentities] truncates longer comments.
const MaxCommentLength = 1024

// FitIdentities shapes entries into an answer that fits one frame.
// Comments over MaxCommentLength are cut at a UTF-8 boundary, then
// entries that would overflow MaxFrameSize are left out. It reports how
// many comments were cut and how many entries were left out.
func FitIdentities(entries []IdentityEntry) (answer IdentitiesAnswer, truncated, omitted int) {
	size := 1 + 4 // type byte and key count
	answer.Identities = make([]IdentityEntry, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Comment) > MaxCommentLength {
			entry.Comment = truncateUTF8(entry.Comment, MaxCommentLength)
			truncated++
		}
		entrySize := 4 + len(entry.KeyBlob) + 4 + len(entry.Comment)
		if size+entrySize > MaxFrameSize {
			omitted++
			continue
		}
		size += entrySize
		answer.Identities = append(answer.Identities, entry)
	}
	return answer, truncated, omitted
}

func truncateUTF8(s string, limit int) string {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ReadFrame reads one length-prefixed frame and returns its payload.
//
// A clean end of stream before the first length byte returns io.EOF.
// Every other short read, a zero length, or a length above
// MaxFrameSize wraps ErrProtocol.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated frame header", ErrProtocol)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d exceeds maximum %d", ErrProtocol, length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated frame: declared %d bytes", ErrProtocol, length)
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single Write.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: outgoing frame length %d exceeds maximum %d", ErrProtocol, len(payload), MaxFrameSize)
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}

// DecodeRequest parses a frame payload. Unknown message types become
// Unsupported. A recognized type with a malformed body wraps
// ErrProtocol.
func DecodeRequest(payload []byte) (Request, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrProtocol)
	}

	switch payload[0] {
	case MsgRequestIdentities:
		if len(payload) != 1 {
			return nil, fmt.Errorf("%w: request-identities carries %d unexpected bytes", ErrProtocol, len(payload)-1)
		}
		return ListIdentities{}, nil

	case MsgSignRequest:
		var msg signRequestMsg
		if err := ssh.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: malformed sign request: %v", ErrProtocol, err)
		}
		return SignRequest{
			KeyBlob: msg.KeyBlob,
			Data:    msg.Data,
			Flags:   msg.Flags,
		}, nil

	default:
		return Unsupported{
			Type:    payload[0],
			Payload: payload[1:],
		}, nil
	}
}

// ReadRequest reads and decodes one request from r.
func ReadRequest(r io.Reader) (Request, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(payload)
}

// EncodeResponse marshals a response to its frame payload.
func EncodeResponse(response Response) ([]byte, error) {
	switch response := response.(type) {
	case Failure:
		return []byte{MsgFailure}, nil

	case IdentitiesAnswer:
		var keys []byte
		for _, identity := range response.Identities {
			keys = append(keys, ssh.Marshal(identityEntryMsg{
				KeyBlob: identity.KeyBlob,
				Comment: identity.Comment,
			})...)
		}
		return ssh.Marshal(identitiesAnswerMsg{
			NumKeys: uint32(len(response.Identities)),
			Keys:    keys,
		}), nil

	case SignResponse:
		return ssh.Marshal(signResponseMsg{SigBlob: response.Signature}), nil

	default:
		return nil, fmt.Errorf("agentproto: cannot encode response type %T", response)
	}
}

// WriteResponse encodes response and writes it as one frame.
func WriteResponse(w io.Writer, response Response) error {
	payload, err := EncodeResponse(response)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}
