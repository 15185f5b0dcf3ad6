package codegen

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/colorfulnotion/lirx64/abi"
	"github.com/colorfulnotion/lirx64/x64errors"
)

type Mode string

const (
	// ModeObject keeps relocations for an external linker.
	ModeObject Mode = "object"
	// ModeJIT resolves every relocation against a load address.
	ModeJIT Mode = "jit"
)

type Config struct {
	Mode     Mode   `json:"mode"`
	CallConv string `json:"call_conv"`
	// CacheDir enables the compiled-function cache; empty disables it.
	CacheDir     string   `json:"cache_dir"`
	LogLevel     string   `json:"log_level"`
	TraceModules []string `json:"trace_modules"`
	// OTLPEndpoint is a host:port for the OTLP/HTTP span exporter; empty
	// disables tracing.
	OTLPEndpoint string `json:"otlp_endpoint"`
	// Jobs bounds how many functions are compiled concurrently.
	Jobs int `json:"jobs"`
}

func DefaultConfig() Config {
	return Config{
		Mode:     ModeObject,
		CallConv: "sysv",
		LogLevel: "info",
		Jobs:     runtime.NumCPU(),
	}
}

// LoadConfig reads a JSON config file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeObject, ModeJIT:
	default:
		return fmt.Errorf("%w: %q", x64errors.ErrUnknownOutputMode, c.Mode)
	}
	if _, err := abi.Lookup(c.CallConv); err != nil {
		return err
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	return nil
}
