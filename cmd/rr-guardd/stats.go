package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-guard/internal/guard/repos/statsfile"
	"github.com/haukened/rr-guard/internal/guard/services/stats"
)

func newStatsCmd(st *cliState) *cobra.Command {
	var (
		top  int
		apex bool
	)
	cmd := &cobra.Command{
		Use:   "stats [FILE]",
		Short: "Summarize a persisted stats file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := st.cfg.Stats.File
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no stats file configured")
			}
			s, err := statsfile.Read(path)
			if err != nil {
				return fmt.Errorf("read stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "since:    %s\n", s.StartTime.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(out, "updated:  %s\n", s.LastUpdated.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(out, "requests: %d total, %d blocked, %d allowed (%.1f%% blocked)\n",
				s.TotalRequests, s.BlockedRequests, s.AllowedRequests, 100*s.BlockRate())
			fmt.Fprintf(out, "latency:  avg %dus, max %dus\n", s.Performance.AvgProcessingTimeUs, s.Performance.MaxProcessingTimeUs)
			if top > 0 {
				fmt.Fprintln(out, "top blocked:")
				for _, dc := range stats.TopBlocked(s, top, apex) {
					fmt.Fprintf(out, "  %6d  %s\n", dc.Count, dc.Domain)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of blocked domains to list")
	cmd.Flags().BoolVar(&apex, "apex", false, "aggregate blocked domains by registrable domain")
	return cmd
}
