package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pixivcrawl/pkg/config"
	"pixivcrawl/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage pixivcrawl configuration.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (PIXIVCRAWL_*), also read from .env files
  - Configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file with every option at its default value.

The file is written to ~/.config/pixivcrawl/config.yaml unless --config
names another path. An existing file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with the cookie masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and credentials",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Stdout, "\nNext steps:")
	fmt.Fprintln(ui.Stdout, "  1. Run 'pixivcrawl auth login' to store your pixiv cookie")
	fmt.Fprintln(ui.Stdout, "  2. Run 'pixivcrawl config validate' to check the file")
	fmt.Fprintln(ui.Stdout, "  3. Crawl with 'pixivcrawl <authorID>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		source = "(none, defaults and environment)"
	}
	ui.PrintInfo("Configuration file", source)
	fmt.Fprintln(ui.Stdout)
	fmt.Fprint(ui.Stdout, string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	if cfg.Pixiv.Cookie == "" {
		ui.PrintWarning("No cookie in the configuration; the stored default account will be used")
	} else if len(config.ParseCookie(cfg.Pixiv.Cookie)) == 0 {
		return errors.New("pixiv cookie has no name=value pairs")
	}
	if cfg.Network.Proxy != "" {
		proxy, _ := config.ProxyURL(cfg.Network.Proxy)
		ui.PrintInfo("Proxy", proxy.String())
	}

	ui.PrintSuccess("Configuration is valid")
	return nil
}
