package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/daemon"
	"github.com/openlvm/lvmdbusd/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lvmdbusd",
	Short: "lvmdbusd - D-Bus API daemon for LVM",
	Long: `lvmdbusd mediates between D-Bus clients and the lvm command line
tool: it caches the on-disk state, serializes mutating operations onto a
single worker, coalesces refreshes, and exposes every physical volume,
volume group and logical volume as an introspectable D-Bus object.`,
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"lvmdbusd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.Flags()
	flags.Bool("udev", false, "Use udev for updating state")
	flags.Bool("debug", false, "Dump debug messages")
	flags.Bool("nojson", false, "Do not use LVM JSON output (not supported: the daemon refuses to start)")
	flags.Bool("lvmshell", false, "Use the lvm shell, not fork & exec lvm")
	flags.Int("frsize", 10, "Size of the flight recorder (num. entries), 0 to disable (signal 12 to dump)")
	flags.String("config", "", "Optional YAML configuration file")
	flags.String("metrics-addr", "", "Expose Prometheus metrics on this address")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
}

func buildConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := config.LoadFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	config.ApplyEnvironment(&cfg)

	// Flags override file and environment.
	if v, _ := cmd.Flags().GetBool("udev"); v {
		cfg.UseUdev = true
	}
	if v, _ := cmd.Flags().GetBool("debug"); v {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if v, _ := cmd.Flags().GetBool("nojson"); v {
		cfg.UseJSON = false
	}
	if v, _ := cmd.Flags().GetBool("lvmshell"); v {
		cfg.UseLvmShell = true
	}
	if cmd.Flags().Changed("frsize") {
		cfg.FlightRecorderSize, _ = cmd.Flags().GetInt("frsize")
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		cfg.LogJSON = true
	}

	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	if code := d.Run(); code != 0 {
		os.Exit(code)
	}
	return nil
}
