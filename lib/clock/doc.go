// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that report durations (agent uptime, decrypt latency)
// take a Clock instead of calling time.Now, so tests can pin time:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server, _ := sshagent.NewServer(sshagent.Config{Clock: c, ...})
//	c.Advance(90 * time.Second)
package clock
