package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/shelter/internal/core/config"
	"github.com/hay-kot/shelter/internal/shelter"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// ServiceOptions are applied when the service is opened. Commands that
	// run long-lived components set the metrics and sinks they need.
	ServiceOptions shelter.Options

	service *shelter.Service
}

// Service opens the shelter service on first use. Opening connects to the
// configured cache backend, so commands that only read config never pay for
// it.
func (f *Flags) Service(ctx context.Context) (*shelter.Service, error) {
	if f.service != nil {
		return f.service, nil
	}

	if f.Config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	svc, err := shelter.New(ctx, f.Config, log.With().Str("component", "shelter").Logger(), f.ServiceOptions)
	if err != nil {
		return nil, fmt.Errorf("open service: %w", err)
	}

	f.service = svc
	return svc, nil
}

// Close releases the service if it was opened.
func (f *Flags) Close() error {
	if f.service == nil {
		return nil
	}
	return f.service.Close()
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "shelter", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "shelter")
}
