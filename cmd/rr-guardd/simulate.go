package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/services/stats"
	"github.com/haukened/rr-guard/internal/guard/system"
)

func newSimulateCmd(st *cliState) *cobra.Command {
	var (
		library string
		symbol  string
		refresh bool
		top     int
	)
	cmd := &cobra.Command{
		Use:   "simulate [FILE]",
		Short: "Replay requests through an installed hook and print verdicts",
		Long: `simulate installs the configured hooks in-process and replays one request
per input line through one of them. A line is "URL [TYPE [ORIGIN]]"; blank
lines and lines starting with # are skipped. Without FILE, lines are read
from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			cfg := *st.cfg
			cfg.Stats.Enabled = true
			cfg.Metrics.Addr = ""
			s, err := system.New(system.Options{
				Config:      &cfg,
				Logger:      log.GetLogger(),
				Refresh:     false,
				NoStatsFile: true,
			})
			if err != nil {
				return err
			}
			if err := s.Start(cmd.Context()); err != nil {
				_ = s.Close()
				return err
			}
			defer s.Stop(cmd.Context())
			if refresh {
				s.RefreshLists(cmd.Context())
			}

			if library == "" || symbol == "" {
				hooks := cfg.HookDescriptors()
				if len(hooks) == 0 {
					return fmt.Errorf("no hooks configured, pass --library and --symbol")
				}
				library, symbol = hooks[0].Library, hooks[0].Name
			}
			reg := s.Registry()
			if !reg.Hooked(library, symbol) {
				return fmt.Errorf("%s!%s is not hooked", library, symbol)
			}

			out := cmd.OutOrStdout()
			if err := replay(in, out, func(req domain.Request) domain.Verdict {
				return reg.Dispatch(library, symbol, req)
			}); err != nil {
				return err
			}

			total, blocked := s.Counts()
			fmt.Fprintf(out, "\ntotal=%d blocked=%d allowed=%d\n", total, blocked, total-blocked)
			if top > 0 {
				for _, dc := range stats.TopBlocked(s.Stats(), top, false) {
					fmt.Fprintf(out, "  %6d  %s\n", dc.Count, dc.Domain)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library of the hook to dispatch through (default: first configured hook)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol of the hook to dispatch through")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch every enabled list before replaying")
	cmd.Flags().IntVar(&top, "top", 5, "print the N most blocked domains")
	return cmd
}

func replay(in io.Reader, out io.Writer, dispatch func(domain.Request) domain.Verdict) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		rawURL := fields[0]
		reqType := domain.DetermineRequestType(rawURL, "")
		origin := ""
		if len(fields) > 1 {
			reqType = fields[1]
		}
		if len(fields) > 2 {
			origin = fields[2]
		}
		v := dispatch(domain.NewRequest(rawURL, reqType, origin))
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v, reqType, rawURL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return sc.Err()
}
