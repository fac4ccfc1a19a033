package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/system"
)

const defaultShutdownTimeout = 10 * time.Second

func newRunCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the guard and serve until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case sig := <-sigChan:
					log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
					cancel()
				case <-ctx.Done():
				}
			}()

			return runDaemon(ctx, st)
		},
	}
}

// runDaemon starts the process-wide instance and blocks until ctx is done.
func runDaemon(ctx context.Context, st *cliState) error {
	cfg := st.cfg
	log.Info(map[string]any{
		"version":         version,
		"env":             cfg.Env,
		"lists":           len(cfg.Filters.Lists),
		"hooks":           len(cfg.HookDescriptors()),
		"update_interval": cfg.Filters.UpdateInterval.String(),
		"metrics":         cfg.Metrics.Addr,
	}, "Starting rr-guard")

	err := system.Initialize(ctx, system.Options{
		Config:  cfg,
		Logger:  log.GetLogger(),
		Refresh: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	<-ctx.Done()
	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := system.Shutdown(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error during shutdown")
		return err
	}
	log.Info(nil, "rr-guard stopped gracefully")
	return nil
}
