// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads ssh-gpg-agent configuration.
//
// Configuration comes from one optional YAML file, named by the
// --config flag or the SSH_GPG_AGENT_CONFIG environment variable.
// Without a file every field takes its default. There is no search
// path: an agent reads exactly the file it was pointed at, or none.
//
// Path fields support ${VAR} and ${VAR:-default} expansion, so a
// shared config can say key_directory: ${HOME}/.ssh. Command-line
// flags are applied by the binary after loading and before Validate.
//
// Unknown keys are an error, so a misspelled field fails loudly
// instead of silently keeping its default.
package config
