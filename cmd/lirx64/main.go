// lirx64 compiles LIR modules to x86-64 and inspects the result.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/lirx64/codegen"
	log "github.com/colorfulnotion/lirx64/log"
	"github.com/colorfulnotion/lirx64/x64errors"
)

var (
	Version = "dev"
	Commit  = "none"
)

type globalFlags struct {
	configPath   string
	logLevel     string
	debug        string
	otlpEndpoint string
}

var (
	flags    globalFlags
	cfg      codegen.Config
	shutdown func(context.Context) error
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "lirx64",
		Short:         "x86-64 backend for LIR modules",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdown != nil {
				return shutdown(context.Background())
			}
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "JSON config file")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&flags.debug, "debug", "", "comma separated modules with trace/debug output ("+strings.Join(log.KnownModules(), ",")+", all)")
	pf.StringVar(&flags.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP endpoint for compile spans")

	rootCmd.AddCommand(
		newCompileCmd(),
		newDisasmCmd(),
		newReplCmd(),
		newSelftestCmd(),
		newPressureCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if tag := x64errors.Tag(err); tag != "" {
			fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", tag, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup resolves the config (file, then flags) and starts logging and
// tracing.
func setup(cmd *cobra.Command) error {
	cfg = codegen.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := codegen.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	pf := cmd.Flags()
	if pf.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = flags.logLevel
	}
	if pf.Changed("debug") {
		cfg.TraceModules = strings.Split(flags.debug, ",")
	}
	if pf.Changed("otlp-endpoint") {
		cfg.OTLPEndpoint = flags.otlpEndpoint
	}

	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	log.InitLogger(cfg.LogLevel)
	log.EnableModules(strings.Join(cfg.TraceModules, ","))

	if cfg.OTLPEndpoint != "" {
		stop, err := codegen.InitTracing(cmd.Context(), cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		shutdown = stop
	}
	return nil
}
