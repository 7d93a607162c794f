package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"inquest/cmd/inquest/daemon"
)

var serviceInstallFlags struct {
	config string
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage inquest as a system service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the system service",
	Long: `Install writes a systemd unit (Linux) or launchd agent (macOS) that
runs "inquest serve" at boot and restarts it on failure, then starts it.`,
	RunE: runServiceInstall,
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the system service",
	RunE:  runServiceUninstall,
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the system service is running",
	RunE:  runServiceStatus,
}

func init() {
	serviceInstallCmd.Flags().StringVarP(&serviceInstallFlags.config, "config", "c", defaultConfigPath(), "config file baked into the service definition")
	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd, serviceStatusCmd)
}

func runServiceInstall(cmd *cobra.Command, _ []string) error {
	cfg := daemon.DefaultConfig()
	if serviceInstallFlags.config != "" {
		cfg.ConfigPath = serviceInstallFlags.config
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := daemon.Install(cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s service installed and started (config: %s)\n", cfg.Name, cfg.ConfigPath)
	return nil
}

func runServiceUninstall(cmd *cobra.Command, _ []string) error {
	name := daemon.DefaultConfig().Name
	if err := daemon.Uninstall(name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s service removed\n", name)
	return nil
}

func runServiceStatus(cmd *cobra.Command, _ []string) error {
	name := daemon.DefaultConfig().Name
	info, err := daemon.Status(name)
	if err != nil {
		return err
	}
	if !info.Running {
		fmt.Fprintf(cmd.OutOrStdout(), "%s service is not running\n", name)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s service is running (pid %d)\n", name, info.PID)
	return nil
}
