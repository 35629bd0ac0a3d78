package app

import (
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/apicorpus/internal/cmd/output"
	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/logging"
	"github.com/agentstation/apicorpus/pkg/reconcile"
	"github.com/agentstation/apicorpus/pkg/registry"
	"github.com/agentstation/apicorpus/pkg/sync"
)

// runFlags are shared by the update, validate and check commands.
type runFlags struct {
	service      string
	failFast     bool
	dryRun       bool
	strict       bool
	forceRefresh bool
	ledger       string
	timeout      time.Duration
}

func (f *runFlags) register(cmd *cobra.Command, fetches bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.service, "service", "", "only candidates of this service (requires a provider)")
	fs.BoolVar(&f.failFast, "fail-fast", false, "stop at the first failed candidate")
	fs.BoolVar(&f.dryRun, "dry-run", false, "report outcomes without writing files or the registry")
	fs.StringVar(&f.ledger, "ledger", "", "write the failure ledger to this file")
	fs.DurationVar(&f.timeout, "timeout", 0, "upper bound for the whole run (0 means none)")
	if fetches {
		fs.BoolVar(&f.strict, "strict", false, "reject documents instead of patching common defects")
		fs.BoolVar(&f.forceRefresh, "force-refresh", false, "ignore cached responses")
	}
}

func (a *App) syncOptions(cmd *cobra.Command, args []string, f *runFlags) []sync.Option {
	flags := cmd.Flags()
	opts := []sync.Option{
		sync.WithService(f.service),
		sync.WithFailFast(f.failFast),
		sync.WithDryRun(f.dryRun),
		sync.WithTimeout(f.timeout),
		sync.WithStrict(a.config.Strict),
		sync.WithForceRefresh(a.config.ForceRefresh),
		sync.WithLedger(a.config.Ledger),
	}
	if len(args) > 0 {
		opts = append(opts, sync.WithProvider(args[0]))
	}
	if flags.Changed("strict") {
		opts = append(opts, sync.WithStrict(f.strict))
	}
	if flags.Changed("force-refresh") {
		opts = append(opts, sync.WithForceRefresh(f.forceRefresh))
	}
	if flags.Changed("ledger") {
		opts = append(opts, sync.WithLedger(f.ledger))
	}
	return opts
}

func (a *App) newStepCommand(step sync.Step, short, long string, fetches bool) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:     string(step) + " [provider-pattern]",
		GroupID: "core",
		Short:   short,
		Long:    long,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			result, runErr := client.Run(cmd.Context(), step, a.syncOptions(cmd, args, &f)...)
			if result != nil {
				if err := output.WriteResult(cmd.OutOrStdout(), output.DetectFormat(a.config.Format), result); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	f.register(cmd, fetches)
	return cmd
}

func (a *App) newUpdateCommand() *cobra.Command {
	return a.newStepCommand(sync.StepUpdate,
		"Fetch, normalize and persist tracked candidates",
		`Update fetches every tracked candidate from its source, normalizes it and
writes the canonical document. Version changes move the candidate to its new
version key; content changes advance its updated timestamp. Candidates whose
local source or canonical file vanished are purged.`,
		true)
}

func (a *App) newValidateCommand() *cobra.Command {
	return a.newStepCommand(sync.StepValidate,
		"Fetch and validate tracked candidates without writing anything",
		`Validate runs the fetch and normalization stages for every tracked candidate
and reports failures. Neither the registry nor the canonical files change.`,
		true)
}

func (a *App) newCheckCommand() *cobra.Command {
	return a.newStepCommand(sync.StepCheck,
		"Purge candidates whose canonical file is missing",
		`Check verifies that every tracked candidate still has its canonical file and
purges the ones that do not. Nothing is fetched.`,
		false)
}

func (a *App) newAddCommand() *cobra.Command {
	var (
		provider  string
		service   string
		preferred bool
		dryRun    bool
		strict    bool
	)
	cmd := &cobra.Command{
		Use:     "add <source>",
		GroupID: "management",
		Short:   "Start tracking an API description",
		Long: `Add fetches the description at <source> (an http(s) URL, file URL or path),
normalizes it and registers it under the version the document declares.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			opts := []sync.Option{sync.WithDryRun(dryRun), sync.WithStrict(a.config.Strict)}
			if cmd.Flags().Changed("strict") {
				opts = append(opts, sync.WithStrict(strict))
			}
			out, err := client.Add(cmd.Context(), reconcile.AddRequest{
				Source:    args[0],
				Provider:  provider,
				Service:   service,
				Preferred: preferred,
			}, opts...)
			if err != nil {
				return err
			}
			if out.Failed() {
				msg := out.Message()
				if out.ErrorContext != "" {
					msg += " at " + out.ErrorContext
				}
				return fmt.Errorf("adding %s: %s", args[0], msg)
			}
			logging.FromContext(cmd.Context()).Info().
				Str("key", out.Key.String()).
				Int("endpoints", out.Endpoints).
				Msg("Candidate added")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Key.String())
			return err
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider name, usually the API's domain (required)")
	cmd.Flags().StringVar(&service, "service", "", "service name within the provider")
	cmd.Flags().BoolVar(&preferred, "preferred", false, "mark this version as preferred")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and report without writing anything")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject documents instead of patching common defects")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func (a *App) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list [provider-pattern]",
		GroupID: "management",
		Short:   "List tracked candidates",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.Client()
			if err != nil {
				return err
			}
			keys := client.Keys()
			if len(args) > 0 {
				filter := sync.Defaults().Apply(sync.WithProvider(args[0]))
				if err := filter.Validate(); err != nil {
					return err
				}
				keys = slices.DeleteFunc(keys, func(k registry.Key) bool { return !filter.Matches(k) })
			}
			rows := output.Candidates(keys, client.Candidate)

			format := output.DetectFormat(a.config.Format)
			var data any = rows
			if format == output.FormatTable {
				data = output.CandidateTable(rows)
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), data)
		},
	}
}

func (a *App) newWatchCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "management",
		Short:   "Run the update step on a schedule until interrupted",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("interval") {
				a.config.UpdateInterval = interval
			}
			if a.config.UpdateInterval <= 0 {
				return &errors.ValidationError{Field: "interval", Value: a.config.UpdateInterval, Message: "interval must be positive"}
			}
			client, err := a.Client()
			if err != nil {
				return err
			}
			if err := client.AutoUpdatesOn(); err != nil {
				return err
			}
			logging.FromContext(cmd.Context()).Info().
				Dur("interval", a.config.UpdateInterval).
				Msg("Scheduled updates started")
			<-cmd.Context().Done()
			return client.AutoUpdatesOff()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between update runs (default from config)")
	return cmd
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			_, err := fmt.Fprintf(w, "apicorpus version %s\ncommit: %s\nbuilt: %s\nbuilt by: %s\ngo version: %s\nplatform: %s/%s\n",
				a.version, a.commit, a.date, a.builtBy, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
