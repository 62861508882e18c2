// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/browser"
	"github.com/xkilldash9x/slotrunner/internal/config"
	"github.com/xkilldash9x/slotrunner/internal/llmclient"
	"github.com/xkilldash9x/slotrunner/internal/observability"
	"github.com/xkilldash9x/slotrunner/internal/orchestrator"
	"github.com/xkilldash9x/slotrunner/internal/reporting"
	"github.com/xkilldash9x/slotrunner/internal/roster"
	"github.com/xkilldash9x/slotrunner/internal/solver"
)

const shutdownTimeout = 15 * time.Second

// pageSource is the shared browser as seen by the run command.
type pageSource interface {
	schemas.PageFactory
	Shutdown(ctx context.Context) error
}

// Function variables so tests can run without Chrome or a model API.
var (
	launchBrowser = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (pageSource, error) {
		return browser.NewManager(ctx, cfg, logger)
	}
	newVisionClient = llmclient.NewVisionClient
)

func newRunCmd(st *cliState) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [roster]",
		Short: "Register every roster profile for every offered slot",
		Long: `Loads the roster (default roster.path), opens one browser page per profile and
walks each profile through every date the form offers. A console summary is printed
at the end; --report additionally writes the result to a file in --format (json or text).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := st.cfg
			if len(args) == 1 {
				cfg.Roster.Path = args[0]
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			reportPath, err := cmd.Flags().GetString("report")
			if err != nil {
				return err
			}
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			if err := reporting.CheckFormat(format); err != nil {
				return err
			}
			return runRegistration(cmd.Context(), cmd.OutOrStdout(), cfg, reportOutput{path: reportPath, format: format}, observability.GetLogger())
		},
	}

	runCmd.Flags().IntP("concurrency", "j", 0, "Maximum concurrent sessions, 0 for one per profile. (Overrides config/env)")
	runCmd.Flags().String("solver", "", "Challenge strategy: direct or vision. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	runCmd.Flags().String("url", "", "Form entry URL or local file path. (Overrides config/env)")
	runCmd.Flags().StringP("report", "o", "", "Write the batch report to this path.")
	runCmd.Flags().StringP("format", "f", "json", "Report format: "+strings.Join(reporting.Formats, " or ")+".")
	return runCmd
}

// reportOutput is where the batch report goes. An empty path writes nothing.
type reportOutput struct {
	path   string
	format string
}

// runRegistration is the composition root for one registration run.
func runRegistration(ctx context.Context, out io.Writer, cfg *config.Config, dest reportOutput, logger *zap.Logger) error {
	profiles, err := roster.Load(cfg.Roster.Path)
	if err != nil {
		return err
	}
	profiles, err = roster.Apply(profiles, cfg.Roster.Incomplete, logger)
	if err != nil {
		return err
	}

	var client schemas.VisionClient
	if cfg.Solver.Strategy == config.StrategyVision {
		client, err = newVisionClient(ctx, cfg.Solver.Vision, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize vision client: %w", err)
		}
		defer client.Close()
	}
	slv, err := solver.New(cfg.Solver, cfg.Form.Challenge, client, logger)
	if err != nil {
		return err
	}

	snapshots, err := reporting.NewFileSnapshotWriter(cfg.Session.SnapshotDir)
	if err != nil {
		return err
	}

	// The browser outlives an interrupt long enough to release pages cleanly.
	pages, err := launchBrowser(context.WithoutCancel(ctx), cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := pages.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		}
	}()

	orch, err := orchestrator.New(cfg, logger, pages, slv, snapshots)
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	logger.Info("Starting registration.",
		zap.Int("profiles", len(profiles)),
		zap.String("solver", slv.Name()),
		zap.Int("max_sessions", cfg.Engine.MaxSessions),
	)
	report, runErr := orch.Run(ctx, profiles)
	if report != nil {
		if err := reporting.WriteSummary(out, report); err != nil {
			logger.Warn("Could not print summary.", zap.Error(err))
		}
		if dest.path != "" {
			if err := writeReport(dest, report); err != nil {
				return errors.Join(runErr, err)
			}
			logger.Info("Report written.", zap.String("path", dest.path), zap.String("format", dest.format))
		}
	}
	return runErr
}

func writeReport(dest reportOutput, report *schemas.BatchReport) error {
	r, err := reporting.New(dest.format, dest.path)
	if err != nil {
		return err
	}
	if err := r.Write(report); err != nil {
		r.Close()
		return err
	}
	return r.Close()
}
