package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/config"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

type cliState struct {
	cfgFile  string
	logLevel string
	cfg      *config.AppConfig
}

func newRootCmd() *cobra.Command {
	st := &cliState{}
	root := &cobra.Command{
		Use:   appName,
		Short: "rr-guard request filtering daemon",
		Long: `rr-guardd decides whether intercepted outbound requests should be blocked,
using filter lists (EasyList, AdGuard, uBlock, hosts files, custom lists) plus
configured allow and block domains.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return st.load()
		},
	}
	root.PersistentFlags().StringVarP(&st.cfgFile, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(st),
		newCheckCmd(st),
		newListsCmd(st),
		newSimulateCmd(st),
		newStatsCmd(st),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func (st *cliState) load() error {
	cfg, err := config.Load(st.cfgFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	level := cfg.Log.Level
	if st.logLevel != "" {
		level = st.logLevel
	}
	err = log.ConfigureWithFile(cfg.Env, level, log.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("logging configuration error: %w", err)
	}
	st.cfg = cfg
	return nil
}
