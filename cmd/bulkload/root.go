package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func newRootCmd() *cobra.Command {
	var (
		logFormat string
		verbose   bool
	)

	root := &cobra.Command{
		Use:   "bulkload",
		Short: "Stream typed record exports into SQL Server, Postgres, MySQL or SQLite",
		Long: `bulkload decodes JSONL exports into typed record models, derives the
column descriptor table from each model's struct tags and streams the rows
through the destination's bulk path (SQL Server bulk copy, Postgres COPY,
MySQL LOAD DATA LOCAL INFILE or batched SQLite inserts).`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), logFormat, verbose)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text|json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	_ = root.RegisterFlagCompletionFunc("log-format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newLoadCmd(), newValidateCmd(), newDescribeCmd(), newModelsCmd())
	return root
}

func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown --log-format %q; want text or json", format)
	}
}
