// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "SSH_GPG_AGENT_CONFIG"

// Backend selects the decryption engine.
type Backend string

const (
	// BackendGPG runs the gpg binary.
	BackendGPG Backend = "gpg"
	// BackendAge decrypts in process with age identities.
	BackendAge Backend = "age"
)

// Config is the complete agent configuration.
type Config struct {
	// SocketPath is the agent socket clients reach via SSH_AUTH_SOCK.
	// Default: <tmp>/ssh-gpg-agent.sock
	SocketPath string `yaml:"socket_path"`

	// KeyDirectory is scanned for identity triples.
	// Default: ${HOME}/.ssh
	KeyDirectory string `yaml:"key_directory"`

	// Backend is "gpg" or "age". Default: gpg
	Backend Backend `yaml:"backend"`

	GPG GPGConfig `yaml:"gpg"`
	Age AgeConfig `yaml:"age"`

	// CiphertextExtension overrides the extension of the ciphertext
	// sibling. Default: the backend name.
	CiphertextExtension string `yaml:"ciphertext_extension"`

	// ControlSocketPath enables the status socket when set.
	ControlSocketPath string `yaml:"control_socket_path"`

	// MetricsListen enables the Prometheus endpoint when set, e.g.
	// "127.0.0.1:9464".
	MetricsListen string `yaml:"metrics_listen"`

	// LogLevel is debug, info, warn, or error. Default: info
	LogLevel string `yaml:"log_level"`
}

// GPGConfig configures the gpg backend.
type GPGConfig struct {
	// Binary is the gpg executable. Default: gpg (found in PATH)
	Binary string `yaml:"binary"`

	// ExtraArgs are passed before the decrypt arguments, for example
	// ["--homedir", "/path/to/gnupg"].
	ExtraArgs []string `yaml:"extra_args"`
}

// AgeConfig configures the age backend.
type AgeConfig struct {
	// IdentitiesFile holds age identities, one per line, including
	// AGE-PLUGIN-... lines for hardware tokens. Required for the age
	// backend.
	IdentitiesFile string `yaml:"identities_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SocketPath:   filepath.Join(os.TempDir(), "ssh-gpg-agent.sock"),
		KeyDirectory: "${HOME}/.ssh",
		Backend:      BackendGPG,
		GPG: GPGConfig{
			Binary: "gpg",
		},
		LogLevel: "info",
	}
}

// Load reads the file named by SSH_GPG_AGENT_CONFIG, or returns the
// expanded defaults if the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.ExpandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and expands variables.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.ExpandVariables()
	return cfg, nil
}

// ExpandVariables expands ${VAR} and ${VAR:-default} in every path
// field. Call it again after overriding fields from flags.
func (c *Config) ExpandVariables() {
	vars := map[string]string{
		"HOME":   os.Getenv("HOME"),
		"TMPDIR": os.TempDir(),
	}

	c.SocketPath = expandVars(c.SocketPath, vars)
	c.KeyDirectory = expandVars(c.KeyDirectory, vars)
	c.GPG.Binary = expandVars(c.GPG.Binary, vars)
	c.Age.IdentitiesFile = expandVars(c.Age.IdentitiesFile, vars)
	c.ControlSocketPath = expandVars(c.ControlSocketPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Extension returns the ciphertext extension in effect: the explicit
// override, or the backend name.
func (c *Config) Extension() string {
	if c.CiphertextExtension != "" {
		return c.CiphertextExtension
	}
	return string(c.Backend)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.SocketPath == "" {
		errs = append(errs, errors.New("socket_path is required"))
	}
	if c.KeyDirectory == "" {
		errs = append(errs, errors.New("key_directory is required"))
	}

	switch c.Backend {
	case BackendGPG:
		if c.GPG.Binary == "" {
			errs = append(errs, errors.New("gpg.binary is required for the gpg backend"))
		}
	case BackendAge:
		if c.Age.IdentitiesFile == "" {
			errs = append(errs, errors.New("age.identities_file is required for the age backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendGPG, BackendAge, c.Backend))
	}

	if extension := c.Extension(); extension == "pub" ||
		strings.ContainsAny(extension, "/.") {
		errs = append(errs, fmt.Errorf("ciphertext_extension %q is not usable", extension))
	}

	if c.ControlSocketPath != "" && c.ControlSocketPath == c.SocketPath {
		errs = append(errs, errors.New("control_socket_path must differ from socket_path"))
	}

	if c.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			errs = append(errs, fmt.Errorf("metrics_listen: %w", err))
		}
	}

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
