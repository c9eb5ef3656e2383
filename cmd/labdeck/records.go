package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/labdeck/pkg/manager"
	"github.com/cuemby/labdeck/pkg/storage"
	"github.com/cuemby/labdeck/pkg/types"
	"github.com/spf13/cobra"
)

// withManager opens the store directly and runs fn against a manager that
// emits nothing. The store is locked by a running server, so these
// commands are meant for setup and maintenance.
func withManager(cmd *cobra.Command, fn func(mgr *manager.Manager, userID int64) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	userID, _ := cmd.Flags().GetInt64("user")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer store.Close()

	secrets, err := openSecrets(cfg)
	if err != nil {
		return err
	}
	return fn(manager.NewManager(store, secrets, nil), userID)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// Plugin commands
var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage installed plugins",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			plugins, err := mgr.ListPlugins(userID)
			if err != nil {
				return err
			}
			if len(plugins) == 0 {
				fmt.Println("No plugins installed")
				return nil
			}
			fmt.Printf("%-6s %-12s %-20s %s\n", "ID", "TYPE", "NAME", "STATUS")
			for _, p := range plugins {
				fmt.Printf("%-6d %-12s %-20s %s\n", p.ID, p.Type, p.Name, enabledLabel(p.IsEnabled))
			}
			return nil
		})
	},
}

var pluginAddCmd = &cobra.Command{
	Use:   "add TYPE",
	Short: "Install a plugin (jexactyl, qbittorrent, glances)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pluginType, err := types.ParsePluginType(args[0])
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		enable, _ := cmd.Flags().GetBool("enable")

		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			p, err := mgr.InstallPlugin(userID, pluginType, name)
			if err != nil {
				return err
			}
			if enable {
				if p, err = mgr.EnablePlugin(userID, p.ID); err != nil {
					return err
				}
			}
			fmt.Printf("✓ Plugin %d (%s) installed, %s\n", p.ID, p.Name, enabledLabel(p.IsEnabled))
			return nil
		})
	},
}

func pluginToggleCmd(use, short string, enable bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
				toggle := mgr.DisablePlugin
				if enable {
					toggle = mgr.EnablePlugin
				}
				p, err := toggle(userID, id)
				if err != nil {
					return err
				}
				fmt.Printf("✓ Plugin %d %s\n", p.ID, enabledLabel(p.IsEnabled))
				return nil
			})
		},
	}
}

var pluginRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Uninstall a plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			if err := mgr.UninstallPlugin(userID, id); err != nil {
				return err
			}
			fmt.Printf("✓ Plugin %d uninstalled\n", id)
			return nil
		})
	},
}

func init() {
	pluginCmd.PersistentFlags().Int64("user", 0, "Owning user id")
	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginAddCmd)
	pluginCmd.AddCommand(pluginToggleCmd("enable", "Enable a plugin", true))
	pluginCmd.AddCommand(pluginToggleCmd("disable", "Disable a plugin", false))
	pluginCmd.AddCommand(pluginRemoveCmd)

	pluginAddCmd.Flags().String("name", "", "Display name (defaults to the type)")
	pluginAddCmd.Flags().Bool("enable", false, "Enable the plugin right away")

	rootCmd.AddCommand(pluginCmd)
}

// Instance commands
var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage service instances",
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			instances, err := mgr.ListInstances(userID)
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Println("No instances registered")
				return nil
			}
			fmt.Printf("%-6s %-12s %-20s %s\n", "ID", "TYPE", "NAME", "URL")
			for _, inst := range instances {
				fmt.Printf("%-6d %-12s %-20s %s\n", inst.ID, inst.Type, inst.Name, inst.URL)
			}
			return nil
		})
	},
}

var instanceAddCmd = &cobra.Command{
	Use:   "add TYPE URL",
	Short: "Register an instance of a service",
	Long: `Register an instance of a service.

Examples:
  labdeck instance add glances http://nas.lan:61208 --user 1
  labdeck instance add qbittorrent http://nas.lan:8080 --user 1 --username admin --password secret`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")

		spec := manager.InstanceSpec{
			Type:     types.PluginType(args[0]),
			Name:     name,
			URL:      args[1],
			Username: username,
			Password: password,
		}
		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			inst, err := mgr.AddInstance(userID, spec)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Instance %d (%s) registered at %s\n", inst.ID, inst.Name, inst.URL)
			return nil
		})
	},
}

var instanceRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an instance and its alert thresholds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			if err := mgr.RemoveInstance(userID, id); err != nil {
				return err
			}
			fmt.Printf("✓ Instance %d removed\n", id)
			return nil
		})
	},
}

func init() {
	instanceCmd.PersistentFlags().Int64("user", 0, "Owning user id")
	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceAddCmd)
	instanceCmd.AddCommand(instanceRemoveCmd)

	instanceAddCmd.Flags().String("name", "", "Display name")
	instanceAddCmd.Flags().String("username", "", "Upstream username")
	instanceAddCmd.Flags().String("password", "", "Upstream password (requires secretKey)")

	rootCmd.AddCommand(instanceCmd)
}

// Alert commands
var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage metric alert thresholds",
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's alert thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			thresholds, err := mgr.ListAlertThresholds(userID)
			if err != nil {
				return err
			}
			if len(thresholds) == 0 {
				fmt.Println("No alert thresholds set")
				return nil
			}
			fmt.Printf("%-6s %-10s %-8s %s\n", "ID", "INSTANCE", "METRIC", "PERCENT")
			for _, t := range thresholds {
				fmt.Printf("%-6d %-10d %-8s %.1f\n", t.ID, t.InstanceID, t.Metric, t.Percent)
			}
			return nil
		})
	},
}

var alertSetCmd = &cobra.Command{
	Use:   "set INSTANCE_ID METRIC PERCENT",
	Short: "Alert when an instance's cpu, memory or disk reaches PERCENT",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		percent, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid percent %q", args[2])
		}
		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			t, err := mgr.SetAlertThreshold(userID, instanceID, types.AlertMetric(args[1]), percent)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Alert %d: instance %d %s >= %.1f%%\n", t.ID, t.InstanceID, t.Metric, t.Percent)
			return nil
		})
	},
}

var alertRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove an alert threshold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(cmd, func(mgr *manager.Manager, userID int64) error {
			if err := mgr.RemoveAlertThreshold(userID, id); err != nil {
				return err
			}
			fmt.Printf("✓ Alert %d removed\n", id)
			return nil
		})
	},
}

func init() {
	alertCmd.PersistentFlags().Int64("user", 0, "Owning user id")
	alertCmd.AddCommand(alertListCmd)
	alertCmd.AddCommand(alertSetCmd)
	alertCmd.AddCommand(alertRemoveCmd)

	rootCmd.AddCommand(alertCmd)
}
