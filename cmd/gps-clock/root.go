package main

import (
	"runtime"

	"github.com/maximewewer/gps-clock/internal/config"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "gps-clock",
		Short:         "GPS disciplined clock daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to configuration file")

	root.AddCommand(
		newRunCmd(opts),
		newInitReceiverCmd(opts),
		newReplayCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("gps-clock version %s %s (%s)\n", version, commit, runtime.Version())
		},
	}
}

// loadConfig loads configuration based on whether a config file is specified
func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		// Priority: Environment Variables > YAML File > Defaults
		return config.LoadFromYamlWithEnvOverrides(configFile)
	}
	// Priority: Environment Variables > Defaults
	return config.LoadFromEnvVarsOnly()
}

// setup loads the configuration and initializes the logger
func setup(opts *rootOptions) (*config.Config, error) {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}

	if err := logger.InitLogger(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		Component:  "gps-clock",
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
