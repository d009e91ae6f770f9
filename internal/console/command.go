package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/dataset"
	"github.com/textsql/textsql/internal/dataset/duckdb"
	"github.com/textsql/textsql/internal/nl2sql"
	"github.com/textsql/textsql/internal/observability"
	"github.com/textsql/textsql/internal/pipeline"
	"github.com/textsql/textsql/internal/query/sqlite"
	"github.com/textsql/textsql/internal/storage"
	"github.com/textsql/textsql/internal/storage/s3"
)

type BuildOptions struct {
	// StorePath overrides the configured default store when set.
	StorePath string
	Explain   bool
	Verbose   bool
	// MaxRows caps printed result rows; zero keeps the renderer default.
	MaxRows int
	Out     io.Writer
	ErrOut  io.Writer
}

// Builder assembles a shell for one invocation of the command.
type Builder func(ctx context.Context, opts BuildOptions) (*Shell, error)

// NewRootCommand returns the textsql command: an interactive shell by
// default, plus one-shot subcommands that reuse the same session code.
func NewRootCommand(build Builder) *cobra.Command {
	var opts BuildOptions
	shellFor := func(cmd *cobra.Command) (*Shell, error) {
		if opts.MaxRows < 0 {
			return nil, fmt.Errorf("--max-rows must not be negative")
		}
		built := opts
		built.Out = cmd.OutOrStdout()
		built.ErrOut = cmd.ErrOrStderr()
		return build(cmd.Context(), built)
	}

	root := &cobra.Command{
		Use:           "textsql",
		Short:         "Ask questions about your data in plain language",
		Long:          "textsql turns natural-language questions into SQL, runs them against a SQLite store and charts the result.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			shell, err := shellFor(cmd)
			if err != nil {
				return err
			}
			return shell.Run(cmd.Context(), cmd.InOrStdin())
		},
	}
	root.PersistentFlags().StringVar(&opts.StorePath, "store", "", "SQLite store to query (defaults to TEXTSQL_STORE_DEFAULT_PATH)")
	root.PersistentFlags().BoolVar(&opts.Explain, "explain", false, "explain generated SQL in plain language")
	root.PersistentFlags().IntVar(&opts.MaxRows, "max-rows", 0, "rows to print per result (0 prints up to 50)")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at the configured level instead of warnings only")

	root.AddCommand(
		&cobra.Command{
			Use:   "ask <question>",
			Short: "Answer one question and exit",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				shell, err := shellFor(cmd)
				if err != nil {
					return err
				}
				return shell.Ask(cmd.Context(), strings.Join(args, " "))
			},
		},
		&cobra.Command{
			Use:   "upload <file>",
			Short: "Load a CSV, parquet or SQLite file into the store",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				shell, err := shellFor(cmd)
				if err != nil {
					return err
				}
				return shell.Upload(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the tables and columns of the store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				shell, err := shellFor(cmd)
				if err != nil {
					return err
				}
				return shell.Schema(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "chat <message>",
			Short: "Ask the general assistant",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				shell, err := shellFor(cmd)
				if err != nil {
					return err
				}
				return shell.Chat(cmd.Context(), strings.Join(args, " "))
			},
		},
	)
	return root
}

// BuildFromEnv wires a shell from the process configuration.
func BuildFromEnv(ctx context.Context, opts BuildOptions) (*Shell, error) {
	cfg, err := config.LoadFromEnv("textsql")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !opts.Verbose && cfg.Observability.LogLevel < slog.LevelWarn {
		cfg.Observability.LogLevel = slog.LevelWarn
	}
	cfg.Observability.LogJSON = false
	logger := observability.NewLogger(cfg, opts.ErrOut)
	return Build(ctx, cfg, logger, opts)
}

// Build wires a shell from cfg.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts BuildOptions) (*Shell, error) {
	storePath := cfg.Store.DefaultPath
	if opts.StorePath != "" {
		storePath = opts.StorePath
	}
	if cfg.Store.SeedSample && opts.StorePath == "" {
		if _, err := sqlite.EnsureSample(ctx, storePath); err != nil {
			return nil, fmt.Errorf("seed sample store: %w", err)
		}
	}

	model, err := nl2sql.NewModel(cfg.AI, logger)
	if err != nil {
		return nil, err
	}

	introspector := sqlite.Introspector{}
	p, err := pipeline.New(pipeline.Options{
		Introspector: introspector,
		Translator:   model,
		Explainer:    model,
		Executor: sqlite.NewExecutor(sqlite.ExecutorOptions{
			ReadOnly:          cfg.Store.ReadOnly,
			AllowedStatements: cfg.Store.AllowedStatements,
			Logger:            logger,
		}),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	var archive storage.Archive
	if cfg.ObjectStore.Enabled {
		store, err := s3.New(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("open upload archive: %w", err)
		}
		archive = store
	}
	datasets, err := dataset.NewService(dataset.Options{
		MaxBytes: cfg.Upload.MaxBytes,
		Importer: duckdb.NewImporter(logger),
		Archive:  archive,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return NewShell(ShellOptions{
		Pipeline:     p,
		Introspector: introspector,
		Datasets:     datasets,
		Assistant:    model,
		StorePath:    storePath,
		Explain:      opts.Explain,
		Out:          opts.Out,
		MaxRows:      opts.MaxRows,
	})
}
