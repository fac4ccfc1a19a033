package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/system"
)

type checkResult struct {
	URL     string `json:"url"`
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
	Matched string `json:"matched,omitempty"`
}

func newCheckCmd(st *cliState) *cobra.Command {
	var (
		refresh bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "check URL...",
		Short: "Print the decision for each URL without counting it",
		Example: `  rr-guardd check https://doubleclick.net/ad.js
  rr-guardd check --refresh --json https://example.com/analytics.js`,
		Args: cobra.MinimumNArgs(1),
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
			if refresh {
				s.RefreshLists(cmd.Context())
			}

			results := make([]checkResult, 0, len(args))
			for _, u := range args {
				d := s.Decide(u)
				results = append(results, checkResult{URL: u, Verdict: d.Verdict.String(), Reason: string(d.Reason), Matched: d.Matched})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERDICT\tREASON\tMATCHED\tURL")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Verdict, r.Reason, dash(r.Matched), r.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch every enabled list before checking")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
