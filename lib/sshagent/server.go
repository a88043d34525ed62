// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sshagent

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/clock"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/identity"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/netutil"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/sealed"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/signer"
)

// Config holds the collaborators of a Server. Scanner, Decrypter, and
// Signer are shared by all sessions and must be safe for concurrent
// use.
type Config struct {
	// SocketPath is where Serve listens.
	SocketPath string

	Scanner   *identity.Scanner
	Decrypter sealed.Decrypter
	Signer    *signer.Registry

	Logger *slog.Logger

	// Recorder receives events for metrics. Optional.
	Recorder Recorder

	// Clock times decrypts and uptime. Defaults to clock.Real().
	Clock clock.Clock
}

// Stats is a snapshot of session counters.
type Stats struct {
	SessionsTotal  uint64
	SessionsActive int64
}

// Server is an SSH agent. Create with NewServer, then call Serve.
type Server struct {
	socketPath string
	scanner    *identity.Scanner
	decrypter  sealed.Decrypter
	signer     *signer.Registry
	logger     *slog.Logger
	recorder   Recorder
	clock      clock.Clock
	startedAt  time.Time

	sessionsTotal  atomic.Uint64
	sessionsActive atomic.Int64

	// connections holds open session connections so shutdown can
	// close them. Guarded by mu.
	mu          sync.Mutex
	connections map[net.Conn]struct{}

	activeSessions sync.WaitGroup
}

// NewServer validates config and returns a server.
func NewServer(config Config) (*Server, error) {
	if config.Scanner == nil {
		return nil, errors.New("sshagent: Scanner is required")
	}
	if config.Decrypter == nil {
		return nil, errors.New("sshagent: Decrypter is required")
	}
	if config.Signer == nil {
		return nil, errors.New("sshagent: Signer is required")
	}
	if config.Logger == nil {
		return nil, errors.New("sshagent: Logger is required")
	}
	recorder := config.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	serverClock := config.Clock
	if serverClock == nil {
		serverClock = clock.Real()
	}
	return &Server{
		socketPath:  config.SocketPath,
		scanner:     config.Scanner,
		decrypter:   config.Decrypter,
		signer:      config.Signer,
		logger:      config.Logger,
		recorder:    recorder,
		clock:       serverClock,
		startedAt:   serverClock.Now(),
		connections: make(map[net.Conn]struct{}),
	}, nil
}

// Serve listens on the configured socket path and runs sessions until
// ctx is cancelled. On cancellation it stops accepting, closes every
// open session connection, and waits for session goroutines to exit.
//
// A stale socket at the path is replaced. The socket is created with
// mode 0600 and removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if s.socketPath == "" {
		return errors.New("sshagent: SocketPath is required")
	}
	listener, err := netutil.ListenUnix(s.socketPath)
	if err != nil {
		return err
	}
	defer listener.Close()

	// Unblock Accept and end open sessions when the context is
	// cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
		s.closeConnections()
	}()

	s.logger.Info("ssh agent listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		if !s.track(ctx, conn) {
			conn.Close()
			break
		}
		s.activeSessions.Add(1)
		go func() {
			defer s.activeSessions.Done()
			defer s.untrack(conn)
			s.ServeConn(ctx, conn)
		}()
	}

	s.activeSessions.Wait()
	s.logger.Info("ssh agent stopped", "sessions_total", s.sessionsTotal.Load())
	return nil
}

// track registers conn for shutdown. Returns false if shutdown has
// already begun, in which case the caller must drop the connection.
func (s *Server) track(ctx context.Context, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.connections[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.connections, conn)
	s.mu.Unlock()
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		conn.Close()
	}
}

// Stats returns the current session counters.
func (s *Server) Stats() Stats {
	return Stats{
		SessionsTotal:  s.sessionsTotal.Load(),
		SessionsActive: s.sessionsActive.Load(),
	}
}

// SocketPath returns the path Serve listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Identities scans the key directory. A directory that cannot be read
// yields no identities and a warning, never an error to the client.
func (s *Server) Identities() []identity.Identity {
	identities, err := s.scanner.Scan()
	if err != nil {
		s.logger.Warn("scanning key directory", "directory", s.scanner.Directory, "error", err)
		return nil
	}
	return identities
}
