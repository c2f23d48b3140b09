// Command cogito is the philosophy research agent CLI.
//
// Usage:
//
//	cogito chat --config config.yaml
//	cogito chat --conversation 3
//	cogito list
//	cogito delete 3
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/logger"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// CLI defines the command-line interface.
type CLI struct {
	Chat    ChatCmd    `cmd:"" default:"withargs" help:"Start or continue a conversation."`
	List    ListCmd    `cmd:"" help:"List saved conversations."`
	Delete  DeleteCmd  `cmd:"" help:"Delete a saved conversation."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)." type:"path"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("cogito version %s\n", version)
	return nil
}

// loadConfig reads env files and the YAML config, applying flag overrides
// for logging.
func loadConfig(cli *CLI) (*config.Config, error) {
	config.LoadEnvFiles()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogger configures the process logger and returns a cleanup closing the
// log file, if any.
func initLogger(cli *CLI, cfg *config.Config) (func(), error) {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		f, err := os.OpenFile(cli.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		cleanup = func() { _ = f.Close() }
	}

	logger.Init(level, output, cfg.Logging.Format)
	return cleanup, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cogito"),
		kong.Description("An iterative research agent for philosophy."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "cogito: %v\n", err)
		if _, ok := err.(*usageError); ok {
			os.Exit(exitUsage)
		}
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}

// usageError marks failures caused by invalid invocation or configuration
// rather than runtime faults.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
