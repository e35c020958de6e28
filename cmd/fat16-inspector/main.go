package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/open-edge-platform/fat16-inspector/internal/config"
	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitUsage         = 2
	exitIO            = 3
	exitDecode        = 4
	exitInvalidLayout = 5
)

// Global command flags
var (
	configFile string
	logLevel   string
)

// usageError marks errors caused by bad arguments or flags.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	var uerr *usageError
	var perr *fs.PathError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr):
		return exitUsage
	case errors.Is(err, fat16.ErrIO), errors.As(err, &perr):
		return exitIO
	case errors.Is(err, fat16.ErrDecode):
		return exitDecode
	case errors.Is(err, fat16.ErrInvalidLayout):
		return exitInvalidLayout
	default:
		return exitFailure
	}
}

// createRootCommand creates the fat16-inspector command tree
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fat16-inspector",
		Short: "inspects FAT16 volumes in disk images",
		Long: `fat16-inspector decodes the boot sector of a FAT16 volume stored in
an image file and reports the volume's on-disk layout: reserved area,
FAT copies, root directory, cluster area and the trailing sectors too
few to form a cluster.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initGlobals,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides the config file)")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(createInspectCommand())
	rootCmd.AddCommand(createScanCommand())
	rootCmd.AddCommand(createCompareCommand())

	return rootCmd
}

// initGlobals loads the config file and applies the log level.
func initGlobals(cmd *cobra.Command, _ []string) error {
	cfg := config.DefaultGlobalConfig()
	if configFile != "" {
		loaded, err := config.LoadGlobalConfig(configFile)
		if err != nil {
			return &usageError{err: err}
		}
		cfg = loaded
	}
	config.SetGlobal(cfg)

	level := cfg.Logging.Level
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	if err := logger.SetLevel(level); err != nil {
		return &usageError{err: err}
	}

	if configFile != "" {
		logger.Logger().Debugf("Loaded configuration from %s", configFile)
	}
	return nil
}

// imageFileCompletion completes image file paths.
func imageFileCompletion(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveDefault
}

func main() {
	rootCmd := createRootCommand()
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", rootCmd.CommandPath())
		}
		os.Exit(exitCode(err))
	}
}
