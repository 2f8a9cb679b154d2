package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/llm-blackbox/internal/observability"
	"github.com/upb/llm-blackbox/internal/traffic"
	"go.uber.org/zap"
)

type options struct {
	url                string
	mode               string
	count              int
	concurrency        int
	pause              time.Duration
	timeout            time.Duration
	templates          string
	highTokenThreshold int
	logLevel           string
}

func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "trafficgen",
		Short: "Send synthetic traffic to the LLM black box",
		Long: "trafficgen issues open-loop requests against POST /ask. Each mode sends a question " +
			"family that produces a distinct telemetry pattern for detection rules to catch.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraffic(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "http://127.0.0.1:8000/ask", "target /ask endpoint")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", string(traffic.ModeNormal), "traffic mode (see list-modes)")
	cmd.Flags().IntVarP(&opts.count, "count", "n", traffic.DefaultCount, "number of requests to send")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 1, "maximum requests in flight")
	cmd.Flags().DurationVar(&opts.pause, "pause", traffic.DefaultPause, "idle time after each response when concurrency is 1; spacing between request starts otherwise")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", traffic.DefaultRequestTimeout, "per-request timeout")
	cmd.Flags().StringVar(&opts.templates, "templates", "", "YAML file overriding question templates")
	cmd.Flags().IntVar(&opts.highTokenThreshold, "high-token-threshold", traffic.DefaultHighTokenThreshold, "response tokens above which an answer is flagged")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level for per-request lines")

	cmd.AddCommand(newListModesCmd())
	return cmd
}

func newListModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-modes",
		Short: "List the available traffic modes",
		Run: func(cmd *cobra.Command, args []string) {
			for _, m := range traffic.AllModes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", m, m.Description())
			}
		},
	}
}

func runTraffic(cmd *cobra.Command, opts options) error {
	mode, err := traffic.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	var templates traffic.Templates
	if opts.templates != "" {
		if templates, err = traffic.LoadTemplates(opts.templates); err != nil {
			return err
		}
	}

	logger, err := observability.NewLogger(opts.logLevel, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	gen, err := traffic.New(traffic.Config{
		TargetURL:          opts.url,
		Mode:               mode,
		Count:              opts.count,
		Concurrency:        opts.concurrency,
		Pause:              opts.pause,
		RequestTimeout:     opts.timeout,
		HighTokenThreshold: opts.highTokenThreshold,
		Templates:          templates,
	}, nil, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := gen.Run(ctx)
	if report != nil {
		report.WriteSummary(cmd.OutOrStdout())
	}
	if err != nil {
		logger.Warn("traffic run interrupted", zap.Error(err))
		return err
	}
	return nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
