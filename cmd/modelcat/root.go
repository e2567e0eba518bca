package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"modelcat/internal/logging"
	"modelcat/internal/startup"
)

// cli carries state shared by every subcommand. v is populated by the root
// command's PersistentPreRunE.
type cli struct {
	configPath string
	v          *viper.Viper
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "modelcat",
		Short: "Filesystem-synchronized catalog of 3D model files",
		Long: "modelcat keeps a SQLite catalog of 3D model files (STL, OBJ, 3MF, PLY, STEP and\n" +
			"models inside ZIP archives) in sync with one or more library directories, using\n" +
			"periodic reconciliation scans and a realtime filesystem watcher.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default is modelcat.yaml in ., ./config, /etc/modelcat or $HOME/.modelcat)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Version = startup.Version

	cmd.AddCommand(
		newServeCommand(c),
		newScanCommand(c),
		newWatchCommand(c),
		newHistoryCommand(c),
		newPurgeCommand(c),
		newModelsCommand(c),
		newSearchCommand(c),
		newTagCommand(c),
		newLibrariesCommand(c),
		newConfigCommand(c),
		newVersionCommand(),
	)

	return cmd
}

// init loads configuration and configures logging before any subcommand runs.
func (c *cli) init(cmd *cobra.Command) error {
	v, err := startup.NewViper(c.configPath)
	if err != nil {
		return err
	}
	if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
		return fmt.Errorf("failed to bind log-level flag: %w", err)
	}

	cfg, err := startup.Decode(v)
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.LoggingOptions()); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	c.v = v
	return nil
}
