package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/taskboard/internal/model"
)

// Config commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(configPath); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Cache.Path == "" {
			cfg.Cache.Path = model.DefaultCachePath()
		}
		if err := model.SaveConfig(configPath, cfg); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Config file: %s\n", configPath)
		fmt.Printf("  API:              %s (timeout %s)\n", cfg.API.BaseURL, cfg.API.Timeout())
		fmt.Printf("  Reconnect:        %d attempts, %s to %s\n",
			cfg.Channel.ReconnectAttempts, cfg.Channel.ReconnectDelay(), cfg.Channel.ReconnectDelayMax())
		fmt.Printf("  Echo writes:      %t\n", cfg.Channel.EchoWrites)
		fmt.Printf("  Refresh interval: %s\n", cfg.Display.RefreshInterval())
		fmt.Printf("  Log:              %s (file %q)\n", cfg.Log.Level, cfg.Log.File)
		fmt.Printf("  Cache:            %q\n", cfg.Cache.Path)
		fmt.Printf("  Metrics:          %q\n", cfg.Metrics.Addr)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}
