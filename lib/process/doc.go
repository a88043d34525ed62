// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the ssh-gpg-agent
// binary: reporting a fatal error before or after the structured
// logger exists, and exiting.
package process
