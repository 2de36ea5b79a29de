package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/vkorhonen/remarkable-go/internal/config"
	"github.com/vkorhonen/remarkable-go/internal/rmcloud"
	"github.com/vkorhonen/remarkable-go/internal/tokenfile"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagTokenFile  string
	flagVerbose    bool
	flagQuiet      bool
)

// cfg holds the effective configuration loaded by PersistentPreRunE.
var cfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remarkable-go",
		Short:   "reMarkable cloud CLI client",
		Long:    "A CLI client for the reMarkable cloud document storage.",
		Version: version,
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := config.Load(flagConfigPath)
			if err != nil {
				return err
			}

			cfg = loaded

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagTokenFile, "token-file", "", "credential file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newFindCmd())

	return cmd
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// credentialPath resolves the credential file location: flag, then config
// file, then the standard resolution order.
func credentialPath() string {
	if flagTokenFile != "" {
		return flagTokenFile
	}

	if cfg != nil && cfg.TokenFile != "" {
		return cfg.TokenFile
	}

	return tokenfile.DefaultPath()
}

// newSession builds a Session from the effective configuration.
func newSession(logger *slog.Logger) *rmcloud.Session {
	return rmcloud.NewSession(
		credentialPath(),
		&http.Client{Timeout: cfg.MetaTimeout()},
		logger,
		rmcloud.SessionOptions{
			AuthHost:      cfg.AuthHost,
			DeviceDesc:    cfg.DeviceDesc,
			TokenTTL:      cfg.TokenTTL(),
			RefreshSkew:   cfg.RefreshSkew(),
			AlwaysRefresh: cfg.AlwaysRefresh,
		},
	)
}

// newCloudClient builds the storage client and its session from the
// effective configuration.
func newCloudClient() (*rmcloud.Client, *slog.Logger) {
	logger := buildLogger()

	client := rmcloud.NewClient(newSession(logger), logger, rmcloud.ClientOptions{
		HTTPClient:  &http.Client{Timeout: cfg.MetaTimeout()},
		BlobClient:  &http.Client{Timeout: cfg.BlobTimeout()},
		StorageHost: cfg.StorageHost,
	})

	return client, logger
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
