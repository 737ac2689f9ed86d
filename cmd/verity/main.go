// Package main provides the verity CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/verity/cli"
	"github.com/richinex/verity/config"
)

var (
	// Global flags
	provider   string
	configPath string
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "verity",
		Short: "Content authenticity analysis with streaming LLM verdicts",
		Long: `Analyze text and images for authenticity with an LLM that can search the web.

The model's reasoning, web searches and answer stream live to the terminal,
and every verdict is kept in a local history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", fmt.Sprintf("LLM provider %v (default from VERITY_PROVIDER, then %s)", config.SupportedProviders(), config.DefaultProvider))
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging on stderr")

	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:   provider,
		ConfigPath: configPath,
		Verbose:    verbose,
	}
}

func checkCmd() *cobra.Command {
	var in cli.CheckInput

	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Analyze a claim and render the verdict",
		Long: `Analyze text and/or images and render the model's progress and verdict.

Images may be http(s) URLs, data URLs or local file paths.
With --isolate the analysis runs in a supervised child process with
timeout and retries.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				in.Text = args[0]
			}
			return cli.Check(cmd.Context(), in, cmd.OutOrStdout(), options())
		},
	}

	cmd.Flags().StringArrayVarP(&in.ImageURLs, "image", "i", nil, "Image URL or path (repeatable)")
	cmd.Flags().StringVarP(&in.SourceURL, "source", "s", "", "Where the content was found")
	cmd.Flags().BoolVar(&in.NoSearch, "no-search", false, "Disable web search")
	cmd.Flags().BoolVar(&in.NoStream, "no-stream", false, "Wait for the whole answer instead of streaming")
	cmd.Flags().BoolVar(&in.Isolate, "isolate", false, "Run the analysis in a supervised child process")
	cmd.Flags().BoolVar(&in.ShowAnswer, "show-answer", false, "Echo the raw answer text while streaming")
	cmd.Flags().BoolVar(&in.NoHistory, "no-history", false, "Do not record the result")

	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Read one request JSON from stdin, stream events and print the result",
		Long: `Process entry used by --isolate and by external supervisors.

Input (stdin):  {"text": "...", "imageUrls": [...], "sourceUrl": "...", "useWebSearch": true, "stream": true}
Output (stdout): __EVENT__{...}__END__ lines while streaming, then the result JSON as the last line.

Exits 1 only when no analysis could be attempted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Analyze(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), options())
		},
	}
}

func serveCmd() *cobra.Command {
	var so cli.ServeOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(cmd.Context(), so, options())
		},
	}

	cmd.Flags().StringVar(&so.Addr, "addr", "", "Listen address (default from VERITY_ADDR, then :8080)")
	cmd.Flags().BoolVar(&so.Isolate, "isolate", false, "Run each analysis in a supervised child process")
	cmd.Flags().BoolVar(&so.Ephemeral, "ephemeral", false, "Keep history in memory instead of the database")

	return cmd
}

func historyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded analyses",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.HistoryList(cmd.Context(), cmd.OutOrStdout(), limit, asJSON, options())
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records (0 for all)")

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.HistoryShow(cmd.Context(), cmd.OutOrStdout(), args[0], asJSON, options())
		},
	}

	del := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete one analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.HistoryDelete(cmd.Context(), cmd.OutOrStdout(), args[0], options())
		},
	}

	clearAll := &cobra.Command{
		Use:   "clear",
		Short: "Delete every analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.HistoryClear(cmd.Context(), cmd.OutOrStdout(), options())
		},
	}

	cmd.AddCommand(list, show, del, clearAll)
	return cmd
}
