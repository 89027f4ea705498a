// Package trace provides the root command: trace one running guest and
// write the run artifact.
package trace

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/schedscope/schedscope/internal/config"
	"github.com/schedscope/schedscope/internal/logging"
	"github.com/schedscope/schedscope/internal/tracer"
)

// New creates the root trace command.
func New() *cobra.Command {
	var (
		configFile string
		outputDir  string
		milestone  string
		logLevel   string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "schedscope <pid>",
		Short: "Measure a guest's vCPU scheduling distribution across host CPUs",
		Long: `Trace one running guest identified by its host pid.

The run attaches a scheduler probe to the host, opens the guest's control
socket, resumes the guest, and waits for the milestone event that closes
the trace window. When the guest exits, the per-thread scheduling counts
are written as a JSON artifact and its path is printed on stdout.

Requires root (or CAP_BPF and CAP_PERFMON) for the scheduler probe.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid %q: expected a positive integer", args[0])
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			// Flags override the config file field by field.
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if cmd.Flags().Changed("milestone") {
				cfg.MilestoneEvent = milestone
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if cmd.Flags().Changed("timeout") {
				cfg.WaitTimeout = config.Duration(timeout)
			}

			logCfg := logging.DefaultConfig()
			logCfg.Level = cfg.Log.Level
			logCfg.Pretty = cfg.Log.Pretty
			logger := logging.NewWithComponent(logCfg, "tracer")

			ctx := cmd.Context()
			if cfg.WaitTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.WaitTimeout.Std())
				defer cancel()
			}

			path, err := tracer.New(cfg, logger).Run(ctx, pid)
			if err != nil {
				return err
			}

			// The artifact path is the command's only stdout output.
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path (default ~/.schedscope/config.yaml)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for run artifacts")
	cmd.Flags().StringVar(&milestone, "milestone", "", "guest event that closes the trace window")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "bound the whole run (0 = no bound)")

	return cmd
}
