// Package main provides the schedscope binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schedscope/schedscope/internal/cli/report"
	"github.com/schedscope/schedscope/internal/cli/trace"
	"github.com/schedscope/schedscope/pkg/version"
)

func main() {
	rootCmd := trace.New()
	rootCmd.Version = version.String()
	rootCmd.AddCommand(report.New())
	rootCmd.AddCommand(newVersionCmd())

	// SIGINT or SIGTERM cancels the run; the probe is detached and the
	// control socket closed before exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("schedscope version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}
