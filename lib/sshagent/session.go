// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sshagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/agentproto"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/clock"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/identity"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/netutil"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/signer"
)

// ServeConn runs one session on conn until the client disconnects, a
// frame is corrupt, or a reply cannot be written. conn is closed on
// return.
//
// ctx bounds decryption work. Closing conn does not cancel a decrypt
// already in progress; its result is discarded when the reply write
// fails.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	session := s.sessionsTotal.Add(1)
	s.sessionsActive.Add(1)
	s.recorder.SessionOpened()
	defer func() {
		s.sessionsActive.Add(-1)
		s.recorder.SessionClosed()
	}()

	logger := s.logger.With("session", session)
	logger.Debug("session opened")

	for {
		request, err := agentproto.ReadRequest(conn)
		if err != nil {
			switch {
			case netutil.IsExpectedCloseError(err):
				logger.Debug("session closed")
			case errors.Is(err, agentproto.ErrProtocol):
				logger.Warn("closing session on protocol error", "error", err)
			default:
				logger.Warn("session read failed", "error", err)
			}
			return
		}

		s.recorder.RequestReceived(request.Kind())
		response := s.dispatch(ctx, logger, request)

		if err := agentproto.WriteResponse(conn, response); err != nil {
			if netutil.IsExpectedCloseError(err) {
				logger.Debug("client went away before reply", "request", request.Kind())
			} else {
				logger.Warn("writing reply", "request", request.Kind(), "error", err)
			}
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, logger *slog.Logger, request agentproto.Request) agentproto.Response {
	switch request := request.(type) {
	case agentproto.ListIdentities:
		return s.listIdentities(logger)
	case agentproto.SignRequest:
		return s.sign(ctx, logger, request)
	case agentproto.Unsupported:
		logger.Debug("unsupported request", "type", request.Type, "length", len(request.Payload))
		return agentproto.Failure{}
	default:
		return agentproto.Failure{}
	}
}

func (s *Server) listIdentities(logger *slog.Logger) agentproto.Response {
	identities := s.Identities()
	entries := make([]agentproto.IdentityEntry, 0, len(identities))
	for _, found := range identities {
		entries = append(entries, agentproto.IdentityEntry{
			KeyBlob: found.Blob,
			Comment: found.Comment,
		})
	}
	answer, truncated, omitted := agentproto.FitIdentities(entries)
	if truncated > 0 || omitted > 0 {
		logger.Warn("identities answer exceeds one frame",
			"truncated_comments", truncated,
			"omitted", omitted,
		)
	}
	logger.Debug("listed identities", "count", len(answer.Identities))
	return answer
}

func (s *Server) sign(ctx context.Context, logger *slog.Logger, request agentproto.SignRequest) agentproto.Response {
	match, err := identity.Find(s.Identities(), request.KeyBlob)
	if err != nil {
		logger.Info("sign request for unknown key", "flags", agentproto.FlagNames(request.Flags))
		s.recorder.SignCompleted(SignNotFound)
		return agentproto.Failure{}
	}

	logger = logger.With(
		"identity", match.Name,
		"fingerprint", match.Fingerprint(),
		"flags", agentproto.FlagNames(request.Flags),
	)

	signature, err := s.signWith(ctx, match, request)
	switch {
	case errors.Is(err, errDecrypt):
		logger.Warn("decryption failed", "ciphertext", match.CiphertextPath, "error", err)
		s.recorder.SignCompleted(SignDecryptError)
		return agentproto.Failure{}
	case err != nil:
		logger.Error("signing failed", "error", err)
		s.recorder.SignCompleted(SignError)
		return agentproto.Failure{}
	}

	logger.Info("signed")
	s.recorder.SignCompleted(SignOK)
	return agentproto.SignResponse{Signature: signature}
}

// errDecrypt marks failures on the read-and-decrypt side of a sign,
// as opposed to failures interpreting the plaintext.
var errDecrypt = errors.New("obtaining plaintext")

// signWith decrypts the identity's ciphertext and signs. The plaintext
// buffer is closed before signWith returns.
func (s *Server) signWith(ctx context.Context, match *identity.Identity, request agentproto.SignRequest) ([]byte, error) {
	ciphertext, err := os.ReadFile(match.CiphertextPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDecrypt, err)
	}

	start := s.clock.Now()
	plaintext, err := s.decrypter.Decrypt(ctx, ciphertext)
	s.recorder.DecryptCompleted(clock.Since(s.clock, start))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errDecrypt, err)
	}
	defer plaintext.Close()

	return s.signer.Sign(signer.Request{
		PublicKey:    match.PublicKey,
		Plaintext:    plaintext.Bytes(),
		ProtectedKey: func() ([]byte, error) { return readProtectedKey(match.KeyPath) },
		Message:      request.Data,
		Flags:        request.Flags,
	})
}

// maxProtectedKeySize bounds the passphrase-protected key file. An
// OpenSSH RSA-16384 container is well under this.
const maxProtectedKeySize = 64 * 1024

func readProtectedKey(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxProtectedKeySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > maxProtectedKeySize {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxProtectedKeySize)
	}
	return data, nil
}
