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
	err := rootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deepradar",
		Short:         "Rank research papers and repositories into weekly investment opportunities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(ingestCmd())
	root.AddCommand(linkCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(selectCmd())
	root.AddCommand(pipelineCmd())
	root.AddCommand(opportunitiesCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func ingestCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Collect papers and repositories from the configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), sources)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific sources to collect (arxiv,github)")
	return cmd
}

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Link papers to the repositories that implement them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cmd.Context())
		},
	}
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Score every embedded, classified paper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context())
		},
	}
}

func selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select",
		Short: "Select this week's opportunities per domain and send alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd.Context())
		},
	}
}

func pipelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Run linking, scoring and selection in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context())
		},
	}
}

func opportunitiesCmd() *cobra.Command {
	var (
		jsonOutput bool
		domain     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "opportunities",
		Short: "Show stored opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpportunities(cmd.Context(), domain, limit, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&domain, "domain", "", "only show this domain")
	cmd.Flags().IntVar(&limit, "limit", 20, "max opportunities to show")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample papers and repositories for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	}
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
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
