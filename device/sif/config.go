package sif

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultResetArgs is the boot argument string handed to the satellite
// on reset.
const DefaultResetArgs = "rom0:UDNL rom0:OSDCNF"

// Config carries the tunables of the SIF stack. Zero values are
// replaced with the defaults below; FromEnv applies SIF_-prefixed
// environment overrides on top of them.
type Config struct {
	// BufferSize is the size in bytes of each of the two per-direction
	// DMA buffers.
	BufferSize int `env:"BUFFER_SIZE"`

	// PollBudget bounds cooperative waits on the satellite: mailbox
	// flag polls during boot and outbound channel waits on paths that
	// may sleep.
	PollBudget time.Duration `env:"POLL_BUDGET"`

	// PollInterval is the sleep between cooperative polls.
	PollInterval time.Duration `env:"POLL_INTERVAL"`

	// SpinBudget bounds the tight busy-wait used on paths that must
	// not sleep, such as sends issued from the inbound dispatch path.
	SpinBudget time.Duration `env:"SPIN_BUDGET"`

	// ResetArgs is the boot argument string sent with the satellite
	// reset command. At most 79 bytes plus the implied terminator.
	ResetArgs string `env:"RESET_ARGS"`
}

// DefaultConfig returns the configuration used when no overrides are
// given.
func DefaultConfig() Config {
	return Config{
		BufferSize:   4096,
		PollBudget:   5 * time.Second,
		PollInterval: time.Millisecond,
		SpinBudget:   5 * time.Millisecond,
		ResetArgs:    DefaultResetArgs,
	}
}

// FromEnv returns DefaultConfig with SIF_-prefixed environment
// variables applied, e.g. SIF_POLL_BUDGET=10s.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SIF_"}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.PollBudget == 0 {
		cfg.PollBudget = def.PollBudget
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SpinBudget == 0 {
		cfg.SpinBudget = def.SpinBudget
	}
	if cfg.ResetArgs == "" {
		cfg.ResetArgs = def.ResetArgs
	}
	return cfg
}
