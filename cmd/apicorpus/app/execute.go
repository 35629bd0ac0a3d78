package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agentstation/apicorpus/internal/cmd/output"
	"github.com/agentstation/apicorpus/pkg/logging"
)

// Execute runs the CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// globalFlags mirrors the persistent flags. Only flags the user set
// override the loaded configuration.
type globalFlags struct {
	config    string
	verbose   bool
	quiet     bool
	noColor   bool
	format    string
	logLevel  string
	registry  string
	outputDir string
}

func (a *App) createRootCommand() *cobra.Command {
	var gf globalFlags

	rootCmd := &cobra.Command{
		Use:     "apicorpus",
		Short:   "Keep a corpus of API descriptions in sync",
		Version: a.version,
		Long: `apicorpus tracks OpenAPI, Swagger and AsyncAPI descriptions from their
upstream sources. Each run fetches every tracked candidate, normalizes it to a
canonical document, and records content changes and version moves in the
metadata registry. One broken candidate never stops the rest of the batch.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupCommand(cmd, &gf)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "management", Title: "Management Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&gf.config, "config", "", "config file (default is .apicorpus.yaml in . or $HOME)")
	pf.BoolVarP(&gf.verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	pf.BoolVarP(&gf.quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	pf.BoolVar(&gf.noColor, "no-color", false, "disable colored output")
	pf.StringVarP(&gf.format, "format", "o", "", "output format: table, json, yaml")
	pf.StringVar(&gf.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	pf.StringVar(&gf.registry, "registry", "", "metadata registry file (default "+a.config.Registry+")")
	pf.StringVar(&gf.outputDir, "output-dir", "", "root of the canonical document tree (default "+a.config.OutputDir+")")

	if a.out != nil {
		rootCmd.SetOut(a.out)
	}
	rootCmd.SetVersionTemplate("apicorpus {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand applies flags over the loaded configuration, rebuilds the
// logger and stores it in the command context.
func (a *App) setupCommand(cmd *cobra.Command, gf *globalFlags) error {
	flags := cmd.Flags()

	if flags.Changed("config") {
		config, err := loadConfig(gf.config)
		if err != nil {
			return err
		}
		a.config = config
	}

	overlay(flags, "verbose", &a.config.Verbose, gf.verbose)
	overlay(flags, "quiet", &a.config.Quiet, gf.quiet)
	overlay(flags, "no-color", &a.config.NoColor, gf.noColor)
	overlay(flags, "format", &a.config.Format, gf.format)
	overlay(flags, "log-level", &a.config.LogLevel, gf.logLevel)
	overlay(flags, "registry", &a.config.Registry, gf.registry)
	overlay(flags, "output-dir", &a.config.OutputDir, gf.outputDir)

	if _, err := output.ParseFormat(a.config.Format); err != nil {
		return err
	}

	logger := NewLogger(a.config)
	a.logger = &logger
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.logger))
	return nil
}

func overlay[T any](flags *pflag.FlagSet, name string, dst *T, value T) {
	if flags.Changed(name) {
		*dst = value
	}
}

func (a *App) registerCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(a.newUpdateCommand())
	rootCmd.AddCommand(a.newValidateCommand())
	rootCmd.AddCommand(a.newCheckCommand())
	rootCmd.AddCommand(a.newAddCommand())

	rootCmd.AddCommand(a.newListCommand())
	rootCmd.AddCommand(a.newWatchCommand())

	rootCmd.AddCommand(a.newVersionCommand())
}

// ExitOnError prints err to stderr and exits with status 1. A nil error is a no-op.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
