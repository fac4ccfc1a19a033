package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/services/ingest"
	"github.com/haukened/rr-guard/internal/guard/system"
)

func newListsCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Refresh every enabled filter list once and print its status",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := system.New(system.Options{
				Config:      st.cfg,
				Logger:      log.GetLogger(),
				NoHooking:   true,
				NoStatsFile: true,
			})
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.Warm(); err != nil {
				log.Warn(map[string]any{"error": err.Error()}, "Rule cache partially restored")
			}
			outcomes := s.RefreshLists(cmd.Context())
			byName := make(map[string]ingest.Outcome, len(outcomes))
			for _, o := range outcomes {
				byName[o.Name] = o
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFORMAT\tENABLED\tRULES\tUPDATED\tSTATUS\tLOCATOR")
			failed := 0
			for _, m := range s.Lists() {
				updated := "never"
				if m.Updated() {
					updated = m.LastUpdated.UTC().Format(time.RFC3339)
				}
				status := string(byName[m.Name].Status)
				if m.Stale() {
					status += ": " + m.LastError
				}
				if byName[m.Name].Status == ingest.StatusFailed {
					failed++
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\t%s\t%s\n", m.Name, m.Format, m.Enabled, m.RuleCount, updated, status, m.Locator)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d filter list(s) failed to refresh", failed)
			}
			return nil
		},
	}
}
