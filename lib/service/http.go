// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// defaultShutdownTimeout bounds how long in-flight scrapes may run
// after cancellation.
const defaultShutdownTimeout = 5 * time.Second

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:9464".
	Address string

	// Routes maps ServeMux patterns ("GET /metrics") to handlers.
	// GET /healthz is always added.
	Routes map[string]http.Handler

	// ShutdownTimeout defaults to 5 seconds.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// HTTPServer serves a few read-only routes on TCP. The agent uses it
// for the Prometheus endpoint. Like SocketServer, Serve blocks until
// its context is cancelled.
type HTTPServer struct {
	address         string
	server          *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration

	// listening is closed once addr is set.
	listening chan struct{}
	addr      net.Addr
}

// NewHTTPServer validates config and builds the route table.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	var errs []error
	if config.Address == "" {
		errs = append(errs, errors.New("service.HTTPServer: Address is required"))
	}
	if len(config.Routes) == 0 {
		errs = append(errs, errors.New("service.HTTPServer: at least one route is required"))
	}
	if config.Logger == nil {
		errs = append(errs, errors.New("service.HTTPServer: Logger is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(writer http.ResponseWriter, _ *http.Request) {
		io.WriteString(writer, "ok\n")
	})
	for pattern, handler := range config.Routes {
		mux.Handle(pattern, handler)
	}

	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return &HTTPServer{
		address: config.Address,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          slog.NewLogLogger(config.Logger.Handler(), slog.LevelWarn),
		},
		logger:          config.Logger,
		shutdownTimeout: timeout,
		listening:       make(chan struct{}),
	}, nil
}

// Serve binds the address and serves until ctx is cancelled, then
// shuts down gracefully.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.listening)
	s.logger.Info("http server listening", "address", s.addr.String())

	failed := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
