// Package config holds the server configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// StaticDir, when set, is served for any path not handled by the sync endpoints.
	StaticDir string `yaml:"static_dir"`
	// Relay is "accepted" or "verbatim".
	Relay      string   `yaml:"relay"`
	SendBuffer int      `yaml:"send_buffer"`
	Plugins    []string `yaml:"plugins"`
	History    History  `yaml:"history"`
	MDNS       bool     `yaml:"mdns"`
}

type History struct {
	Enabled bool `yaml:"enabled"`
	// DumpDir receives the journal and the rendered history on shutdown. Defaults to the temp dir.
	DumpDir string `yaml:"dump_dir"`
	// RenderKey, when set, renders that key's history as SVG on shutdown.
	RenderKey string `yaml:"render_key"`
}

func Default() Server {
	return Server{
		Host:       "",
		Port:       3000,
		Relay:      "accepted",
		SendBuffer: 256,
	}
}

// Load returns the defaults overlaid with the YAML file at path, if any, and then with the environment.
func Load(path string) (Server, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv applies the PORT override.
func (s *Server) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT=%q", ErrInvalid, v)
		}
		s.Port = port
	}
	return nil
}

func (s Server) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, s.Port)
	}
	switch s.Relay {
	case "", "accepted", "verbatim":
	default:
		return fmt.Errorf("%w: relay must be accepted or verbatim, got %q", ErrInvalid, s.Relay)
	}
	if s.SendBuffer < 0 {
		return fmt.Errorf("%w: send_buffer must not be negative", ErrInvalid)
	}
	return nil
}

func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
