// Command leiberluna runs the legal assistant RPC server and a small client for it.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DANIELAGORA/leiberluna/config"
	"github.com/DANIELAGORA/leiberluna/logger"
)

type app struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	log      zerolog.Logger
	closeLog func() error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "leiberluna",
		Short:         "Legal assistant RPC server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(newServeCmd(a), newCallCmd(a), newCapabilitiesCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, closeLog, err := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	a.cfg, a.log, a.closeLog = cfg, log, closeLog
	return nil
}
