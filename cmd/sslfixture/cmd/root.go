package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	outDir       string
	manifestPath string
	opensslPath  string
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "sslfixture",
	Short: "sslfixture generates deterministic PKI test fixtures",
	Long: `Generates a small certificate hierarchy (root CAs, leaves signed by them,
revocations and CRLs) as PEM files for use by TLS test suites. All
cryptography is delegated to the openssl command-line tool.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "./fixtures", "Output root for generated artifacts")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "Manifest file (YAML); defaults to the built-in fixture set")
	rootCmd.PersistentFlags().StringVar(&stateDSN, "state-dsn", "", "PostgreSQL DSN for saved state instead of the local state file")
	rootCmd.PersistentFlags().StringVar(&opensslPath, "openssl", "openssl", "Path to the openssl executable")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
