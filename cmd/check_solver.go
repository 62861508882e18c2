// -- cmd/check_solver.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/slotrunner/internal/config"
	"github.com/xkilldash9x/slotrunner/internal/llmclient"
	"github.com/xkilldash9x/slotrunner/internal/observability"
)

func newCheckSolverCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "check-solver",
		Short: "Send a probe image to the vision model to verify credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vision := st.cfg.Solver.Vision
			// Validate as if the vision strategy were selected, whatever the configured one is.
			check := config.SolverConfig{Strategy: config.StrategyVision, Vision: vision}
			if err := check.Validate(); err != nil {
				return fmt.Errorf("invalid solver configuration: %w", err)
			}

			logger := observability.GetLogger()
			client, err := newVisionClient(cmd.Context(), vision, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize vision client: %w", err)
			}
			defer client.Close()

			reply, err := llmclient.Probe(cmd.Context(), client)
			if err != nil {
				return err
			}
			logger.Info("Vision model reachable.", zap.String("provider", string(vision.Provider)), zap.String("model", vision.Model))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s/%s replied: %s\n", vision.Provider, vision.Model, reply)
			return err
		},
	}
}
