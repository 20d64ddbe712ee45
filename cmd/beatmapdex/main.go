package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "beatmapdex",
		Short:        "Import osu! beatmaps and search them by metadata and difficulty",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(importCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func importCmd() *cobra.Command {
	var maxRequests int

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import ranked beatmapsets from the osu! API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), maxRequests)
		},
	}

	cmd.Flags().IntVar(&maxRequests, "max-requests", 0, "max API pages to fetch (default: from config)")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		jsonOutput bool
		params     map[string]string
		limit      int
		cursor     string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search stored beatmaps",
		Example: `  beatmapdex search --param status=ranked --param starsMin=5 --limit 10
  beatmapdex search --param tags=anime --cursor "2024-01-10T00:00:00+00:00|7" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit > 0 {
				params["limit"] = fmt.Sprint(limit)
			}
			if cursor != "" {
				params["cursor"] = cursor
			}
			return runSearch(cmd.Context(), params, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringToStringVar(&params, "param", map[string]string{}, "search parameter as key=value (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "beatmapsets per page (default: from config)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with import scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
