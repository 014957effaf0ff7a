package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/api"
	"github.com/JakeFAU/reverse411/internal/app"
	"github.com/JakeFAU/reverse411/internal/catalog"
	"github.com/JakeFAU/reverse411/internal/clock/system"
	"github.com/JakeFAU/reverse411/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/reverse411/internal/fetcher/colly"
	"github.com/JakeFAU/reverse411/internal/orchestrator"
	"github.com/JakeFAU/reverse411/internal/parser"
	"github.com/JakeFAU/reverse411/internal/resolver"
	"github.com/JakeFAU/reverse411/internal/storage/xlsx"
	"github.com/JakeFAU/reverse411/internal/writer"
)

const closeTimeout = 15 * time.Second

// newResolveCmd creates the 'resolve' subcommand.
func newResolveCmd() *cobra.Command {
	var fromRow int
	cmd := &cobra.Command{
		Use:   "resolve <workbook.xlsx>",
		Short: "Resolve phone numbers for every pending row of a workbook",
		Long: `Scans the workbook from --from-row to the last row and looks up every
address whose phone column is blank. Results are saved in batches; rerunning
the command picks up where the previous run stopped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cmd.OutOrStdout(), args[0], fromRow)
		},
	}
	cmd.Flags().IntVar(&fromRow, "from-row", 1, "first data row to consider (1-based)")
	return cmd
}

func runResolve(ctx context.Context, out io.Writer, path string, fromRow int) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		appInstance.Close(closeCtx)
		_ = appInstance.Logger().Sync()
	}()
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	wb, err := xlsx.Open(path)
	if err != nil {
		if errors.Is(err, xlsx.ErrWorkbookInUse) {
			logger.Error("close the workbook before running", zap.String("workbook", path), zap.Error(err))
		} else {
			logger.Error("open workbook failed", zap.String("workbook", path), zap.Error(err))
		}
		return fmt.Errorf("open workbook: %w", err)
	}

	res, err := buildResolver(appInstance)
	if err != nil {
		return err
	}
	orch := orchestrator.New(res, orchestrator.Config{
		RunID:    appInstance.RunID(),
		Workbook: wb.Path(),
		FromRow:  fromRow,
		Target:   catalog.Target{BaseURL: cfg.Lookup.BaseURL, Mode: cfg.Lookup.Mode},
		Dispatch: dispatcher.Config{
			WaveSize:      cfg.Dispatch.WaveSize,
			WaveInterval:  cfg.Dispatch.WaveInterval(),
			SubmitSpacing: cfg.Dispatch.SubmitSpacing(),
		},
		Writer: writer.Config{
			BatchSize:    cfg.Writer.BatchSize,
			Pause:        cfg.Writer.Pause(),
			IdleWait:     cfg.Writer.IdleWait(),
			NoMatchValue: cfg.Lookup.NoMatchValue,
		},
		MaxInFlight: cfg.Dispatch.MaxInFlight,
	}, appInstance.Events(), system.New(), logger)

	if cfg.Server.Addr != "" {
		stopServer := startServer(ctx, appInstance, orch)
		defer stopServer()
	}

	logger.Info("run starting",
		zap.String("workbook", wb.Path()),
		zap.Int("rows", wb.LastRowIndex()),
		zap.Int("from_row", fromRow),
	)
	report, err := orch.Run(ctx, wb)
	if err != nil {
		logger.Error("run failed",
			zap.Error(err),
			zap.Int64("completed", report.Completed),
			zap.Int("written", report.Written),
		)
		return err
	}

	logger.Info("run finished",
		zap.Int("backlog", report.Total),
		zap.Int64("resolved", report.Resolved),
		zap.Int64("no_match", report.NoMatch),
		zap.Int64("failed", report.Failed),
		zap.Int("batches", report.Batches),
		zap.Duration("elapsed", report.Elapsed),
	)
	fmt.Fprintf(out, "run %s: %d rows looked up (%d resolved, %d no match, %d failed), %d written in %d batches, elapsed %s\n",
		report.RunID, report.Total, report.Resolved, report.NoMatch, report.Failed,
		report.Written, report.Batches, report.Elapsed.Round(time.Millisecond))
	return nil
}

func buildResolver(a *app.App) (*resolver.Resolver, error) {
	cfg := a.Config()
	fetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTP.Timeout(),
		Encoding:      cfg.Lookup.Encoding,
	})
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	return resolver.New(fetcher, parser.New(parser.Selectors{}), a.Archive(), resolver.Config{
		ArchivePrefix: cfg.Archive.Prefix,
		RunID:         a.RunID().String(),
	}, a.Logger()), nil
}

// startServer serves the progress API until the returned stop func is called.
func startServer(ctx context.Context, a *app.App, orch *orchestrator.Orchestrator) func() {
	var runs *api.RunHandler
	if a.Ledger() != nil {
		runs = api.NewRunHandler(a.Ledger(), a.Logger())
	}
	srv := api.NewServer(orch, runs, a.Logger())

	serverCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(serverCtx, a.Config().Server.Addr); err != nil {
			a.Logger().Warn("progress api stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
