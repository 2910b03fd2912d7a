package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "docqa",
		Short:         "Question answering over ingested documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env опционален
			_ = godotenv.Load()

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			slog.SetDefault(logger)
			return nil
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(statsCmd())

	// Контекст с сигналами завершения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
}

func ingestCmd() *cobra.Command {
	var file, url, id, name string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a local file or a URL into the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (url == "") {
				return errors.New("exactly one of --file or --url is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var err error
				var res any
				if file != "" {
					res, err = a.IngestFile(ctx, file, id, name)
				} else {
					res, err = a.IngestURL(ctx, app.IngestRequest{PDFURL: url, FileKey: id, FileName: name})
				}
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a local pdf, markdown or text file")
	cmd.Flags().StringVar(&url, "url", "", "document URL to download")
	cmd.Flags().StringVar(&id, "id", "", "document id (defaults to the file name for --file)")
	cmd.Flags().StringVar(&name, "name", "", "document name (defaults to the file base name for --file)")
	return cmd
}

func queryCmd() *cobra.Command {
	var (
		id      string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "query QUESTION",
		Short: "Answer a question from one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				answer, err := a.Ask(ctx, args[0], id)
				if err != nil {
					return err
				}
				fmt.Println(answer.Text)
				if verbose {
					for i, m := range answer.Sources {
						fmt.Printf("\n[%d] score=%.4f\n%s\n", i+1, m.Score, m.Text)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "document id to answer from")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the retrieved chunks")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print index contents summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, err := a.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
