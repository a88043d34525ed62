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
	"sync"
	"time"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/codec"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/netutil"
)

// exchangeTimeout bounds one request-response exchange, covering both
// the request read and the response write.
const exchangeTimeout = 10 * time.Second

// maxRequestSize bounds a single request. Control requests are a few
// dozen bytes.
const maxRequestSize = 64 * 1024

// Response is the wire envelope for every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Request is a decoded control request. Every request is a CBOR map
// with an "action" key; other keys are action-specific.
type Request struct {
	Action string
	raw    codec.RawMessage
}

// Decode unmarshals the whole request map into v.
func (r *Request) Decode(v any) error {
	return codec.Unmarshal(r.raw, v)
}

// ActionFunc answers one action. A nil result replies {ok: true}
// with no data. An error replies {ok: false} with its message, so it
// must not carry anything secret.
type ActionFunc func(ctx context.Context, request *Request) (any, error)

// SocketServer answers CBOR requests on a unix socket. Each
// connection carries one request and one response.
type SocketServer struct {
	socketPath string
	actions    map[string]ActionFunc
	logger     *slog.Logger

	inflight sync.WaitGroup
}

// NewSocketServer returns a server for socketPath with no actions.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		actions:    make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers action. Registering the same action twice panics.
// Call before Serve.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.actions[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.actions[action] = handler
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight exchanges. The socket is created mode 0600 (replacing a
// stale one) and removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	listener, err := netutil.ListenUnix(s.socketPath)
	if err != nil {
		return err
	}
	defer listener.Close()
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("control socket listening", "path", s.socketPath)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("control accept failed", "error", err)
			continue
		}
		s.inflight.Go(func() { s.exchange(ctx, conn) })
	}

	s.inflight.Wait()
	return nil
}

func (s *SocketServer) exchange(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(exchangeTimeout))

	response := s.respond(ctx, io.LimitReader(conn, maxRequestSize))
	if response == nil {
		return
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Debug("writing control response failed", "error", err)
	}
}

// respond reads one request from r and builds its reply. A client
// that sends nothing gets no reply.
func (s *SocketServer) respond(ctx context.Context, r io.Reader) *Response {
	request := &Request{}
	if err := codec.NewDecoder(r).Decode(&request.raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return failure("invalid request: %v", err)
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := request.Decode(&header); err != nil {
		return failure("invalid request: %v", err)
	}
	if header.Action == "" {
		return failure("missing required field: action")
	}
	request.Action = header.Action

	handler, exists := s.actions[request.Action]
	if !exists {
		return failure("unknown action %q", request.Action)
	}

	result, err := handler(ctx, request)
	if err != nil {
		s.logger.Debug("control action failed", "action", request.Action, "error", err)
		return failure("%s", err)
	}
	if result == nil {
		return &Response{OK: true}
	}
	data, err := codec.Marshal(result)
	if err != nil {
		return failure("internal: encoding %s response: %v", request.Action, err)
	}
	return &Response{OK: true, Data: data}
}

func failure(format string, args ...any) *Response {
	return &Response{Error: fmt.Sprintf(format, args...)}
}
