// Package main is the entry point for calcd: the calculator and Brainfuck
// CLI and the server hosting both.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lemonberrylabs/calcd/pkg/config"
	"github.com/lemonberrylabs/calcd/pkg/runtime"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errFailed marks a run whose failure was already printed.
var errFailed = errors.New("failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "calcd",
		Short:         "Sandboxed calculator and Brainfuck VM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version + " (commit=" + commit + ", built=" + date + ")"
	root.SetVersionTemplate("calcd version {{.Version}}\n")

	root.PersistentFlags().String("config", "", "Path to a YAML config file (env CALCD_CONFIG)")
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")
	root.PersistentFlags().Duration("timeout", 0, "Evaluation timeout (default 10s, env CALCD_TIMEOUT)")

	root.AddCommand(newServeCmd(), newCalcCmd(), newBrainfuckCmd(), newFunctionsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file and the environment, then applies the
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("CALCD_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("debug") {
		if debug, _ := flags.GetBool("debug"); debug {
			cfg.LogLevel = "debug"
		}
	}
	for name, dst := range map[string]*string{
		"host":         &cfg.Host,
		"project":      &cfg.Project,
		"location":     &cfg.Location,
		"programs-dir": &cfg.ProgramsDir,
	} {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	for name, dst := range map[string]*int{"port": &cfg.Port, "grpc-port": &cfg.GRPCPort} {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func newEngine(cfg *config.Config, log *zap.Logger) *runtime.Engine {
	return runtime.NewEngine(runtime.WithConfig(cfg.Engine()), runtime.WithLogger(log))
}
