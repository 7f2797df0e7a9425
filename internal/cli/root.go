// Package cli implements the waystation command line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Root      string // run root directory
	Journal   string // seal journal path; empty means <root>/journal.db
	Pipeline  string // pipeline CUE directory; empty means the built-in
	LogLevel  string
	LogFormat string
	Config    string // optional config file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the waystation CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "waystation",
		Short: "Waystation - pipeline run sealing engine",
		Long: `Waystation orchestrates multi-stage pipeline runs: stations write
artifacts under a per-run directory, and every flow terminates with a
machine-parseable receipt derived mechanically from the artifacts.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, opts); err != nil {
				return err
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", "", "run root directory")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "seal journal path (default <root>/journal.db)")
	cmd.PersistentFlags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline definition directory (default built-in)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default ./waystation.yaml if present)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSealCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))

	return cmd
}

// RequireRoot errors when no run root is configured. Commands that read
// or write under the root call this; validate runs without one.
func (o *RootOptions) RequireRoot() error {
	if o.Root == "" {
		return NewExitError(ExitCommandError, "no run root configured: pass --root or set root in the config file")
	}
	return nil
}

// loadConfig overlays the optional config file under the flags: a flag
// set explicitly always wins over the file, the file wins over defaults.
func loadConfig(cmd *cobra.Command, opts *RootOptions) error {
	v := viper.New()
	if opts.Config != "" {
		v.SetConfigFile(opts.Config)
	} else {
		v.SetConfigName("waystation")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.Config == "" && errors.As(err, &notFound) {
			return nil // no config file is fine unless one was named
		}
		if opts.Config == "" && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}

	if opts.Root == "" {
		opts.Root = v.GetString("root")
	}
	if opts.Journal == "" {
		opts.Journal = v.GetString("journal")
	}
	if opts.Pipeline == "" {
		opts.Pipeline = v.GetString("pipeline")
	}
	// Changed, not the default value: --log-level info passed explicitly
	// must not be overridden by the file.
	if v.IsSet("log_level") && !cmd.Root().PersistentFlags().Changed("log-level") {
		opts.LogLevel = v.GetString("log_level")
	}
	return nil
}

// JournalPath resolves the journal location.
func (o *RootOptions) JournalPath() string {
	if o.Journal != "" {
		return o.Journal
	}
	return filepath.Join(o.Root, "journal.db")
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
