// git-audit anchors a git repository's history in an Ethereum contract and
// validates the local history against what was anchored.
//
// Usage:
//
//	git-audit init [--no-commit]
//	git-audit anchor
//	git-audit validate
//
// Exit codes: 0 success, 1 reported failure, 2 unexpected error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/git-audit/internal/history"
	"github.com/jmerrifield20/git-audit/internal/identity"
	"github.com/jmerrifield20/git-audit/internal/journal"
	"github.com/jmerrifield20/git-audit/internal/logging"
	"github.com/jmerrifield20/git-audit/internal/metrics"
	"github.com/jmerrifield20/git-audit/internal/settings"
	"github.com/jmerrifield20/git-audit/internal/workflow"
	"github.com/jmerrifield20/git-audit/pkg/ledger"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := workflow.ExitOK
	root := newRootCmd(stdout, stderr, &code)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "git-audit: %v\n", err)
		return exitCode(err)
	}
	return code
}

// exitCode maps an error to an exit code. Configuration problems and a
// missing repository are reported failures; everything else is unexpected.
func exitCode(err error) int {
	var cfgErr *settings.ConfigError
	switch {
	case errors.As(err, &cfgErr),
		errors.Is(err, identity.ErrInvalidSecret),
		errors.Is(err, history.ErrNoRepository),
		errors.Is(err, errUsage):
		return workflow.ExitFailure
	default:
		return workflow.ExitUnexpected
	}
}

var errUsage = errors.New("usage")

func newRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "git-audit",
		Short: "Anchor git history in an Ethereum contract",
		Long: `git-audit keeps a tamper-evident record of a repository's history.

init deploys the audit contract and records it in .git-audit.json,
anchor stores the current HEAD commit in the contract, and validate
checks that every anchored commit is still part of the local history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v.SetEnvPrefix("GIT_AUDIT")
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			return v.BindPFlags(cmd.Flags())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	root.PersistentFlags().String("global-config", "", "global settings file (default $XDG_CONFIG_HOME/git-audit.json)")
	root.PersistentFlags().StringP("repository", "C", ".", "path inside the repository to audit")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	var noCommit bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Deploy the audit contract for this repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), v, stdout, stderr, code, func(w *workflow.Workflow, ctx context.Context) (int, error) {
				return w.Initialize(ctx, noCommit)
			})
		},
	}
	initCmd.Flags().BoolVar(&noCommit, "no-commit", false, "write .git-audit.json without committing it")

	anchorCmd := &cobra.Command{
		Use:   "anchor",
		Short: "Record the current HEAD commit in the audit contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), v, stdout, stderr, code, (*workflow.Workflow).Anchor)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every anchored commit exists in the local history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), v, stdout, stderr, code, (*workflow.Workflow).Validate)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the git-audit version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "git-audit %s\n", version)
		},
	}

	root.AddCommand(initCmd, anchorCmd, validateCmd, versionCmd)
	return root
}

// ── Wiring ───────────────────────────────────────────────────────────────────

// operation has the shape of the Workflow method expressions.
type operation func(w *workflow.Workflow, ctx context.Context) (int, error)

// runWorkflow opens the repository, loads settings, builds the logger,
// ledger connector, journal and metrics export, then runs op.
func runWorkflow(ctx context.Context, v *viper.Viper, stdout, stderr io.Writer, code *int, op operation) error {
	logger, target := logging.Start(logging.Options{Verbose: v.GetBool("verbose"), Console: stderr})
	defer func() {
		_ = logger.Sync()
		target.Close()
	}()

	repo, err := history.Open(v.GetString("repository"), logger.Named("history"))
	if err != nil {
		return err
	}
	s, err := settings.Load(v.GetString("global-config"), repo.Root(), logger.Named("settings"))
	if err != nil {
		return err
	}
	if t := s.LogTarget(); t != "" {
		if err := target.Attach(t); err != nil {
			return &settings.ConfigError{Field: "logging.file", Err: err}
		}
	}
	logger.Debug("settings loaded",
		zap.String("global", s.GlobalPath()),
		zap.String("repository", repo.Root()),
	)

	var client *ledger.RPCClient
	connect := func(ctx context.Context, rpcTarget string) (ledger.Client, error) {
		c, err := ledger.Dial(ctx, rpcTarget,
			ledger.WithLogger(logger.Named("ledger")),
			ledger.WithRequestObserver(metrics.RecordLedgerRequest),
		)
		if err != nil {
			return nil, err
		}
		client = c
		return c, nil
	}
	defer func() {
		if client != nil {
			client.Close()
		}
	}()

	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithOutput(stdout),
	}
	if url := s.JournalDatabaseURL(); url != "" {
		j, err := journal.Open(ctx, url, logger.Named("journal"))
		if err != nil {
			return err
		}
		defer j.Close()
		opts = append(opts, workflow.WithJournal(j))
	}

	if path := s.MetricsTextfile(); path != "" {
		defer func() {
			if err := metrics.WriteTextfile(path); err != nil {
				logger.Warn("writing metrics textfile failed", zap.String("path", path), zap.Error(err))
			}
		}()
	}

	c, err := op(workflow.New(s, repo, connect, opts...), ctx)
	if err != nil {
		return err
	}
	*code = c
	return nil
}
