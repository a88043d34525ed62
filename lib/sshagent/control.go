// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sshagent

import (
	"context"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/clock"
	"github.com/bureau-foundation/ssh-gpg-agent/lib/service"
)

// Status is the control socket "status" response.
type Status struct {
	Version        string `json:"version"`
	SocketPath     string `json:"socket_path"`
	KeyDirectory   string `json:"key_directory"`
	Backend        string `json:"backend"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	SessionsTotal  uint64 `json:"sessions_total"`
	SessionsActive int64  `json:"sessions_active"`
}

// IdentityInfo describes one identity in the "identities" response.
// Everything here is public.
type IdentityInfo struct {
	Name           string `json:"name"`
	KeyType        string `json:"key_type"`
	Fingerprint    string `json:"fingerprint"`
	Comment        string `json:"comment"`
	CiphertextPath string `json:"ciphertext_path"`
}

// ControlInfo is static data reported by the status action.
type ControlInfo struct {
	Version string
	Backend string
}

// RegisterControl adds the "status" and "identities" actions to a
// control socket server.
func (s *Server) RegisterControl(control *service.SocketServer, info ControlInfo) {
	control.Handle("status", func(context.Context, *service.Request) (any, error) {
		stats := s.Stats()
		return Status{
			Version:        info.Version,
			SocketPath:     s.socketPath,
			KeyDirectory:   s.scanner.Directory,
			Backend:        info.Backend,
			UptimeSeconds:  int64(clock.Since(s.clock, s.startedAt).Seconds()),
			SessionsTotal:  stats.SessionsTotal,
			SessionsActive: stats.SessionsActive,
		}, nil
	})

	control.Handle("identities", func(context.Context, *service.Request) (any, error) {
		identities := s.Identities()
		result := make([]IdentityInfo, 0, len(identities))
		for index := range identities {
			found := &identities[index]
			result = append(result, IdentityInfo{
				Name:           found.Name,
				KeyType:        found.KeyType(),
				Fingerprint:    found.Fingerprint(),
				Comment:        found.Comment,
				CiphertextPath: found.CiphertextPath,
			})
		}
		return result, nil
	})
}
