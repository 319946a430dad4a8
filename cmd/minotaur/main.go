package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/minotaur-dev/minotaur/pkg/cli"
	"github.com/minotaur-dev/minotaur/pkg/config"
	"github.com/minotaur-dev/minotaur/pkg/lockfile"
	"github.com/minotaur-dev/minotaur/pkg/log"
	"github.com/minotaur-dev/minotaur/pkg/metrics"
	"github.com/minotaur-dev/minotaur/pkg/orchestrator"
	"github.com/minotaur-dev/minotaur/pkg/types"
	"github.com/minotaur-dev/minotaur/pkg/volume"
)

var (
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
	Use:   "minotaur",
	Short: "Run developer commands inside ephemeral, credentialed sandbox containers",
	Long: `minotaur wraps a developer command (typically an AI coding agent) in a
rootless container configured with ephemeral cloud credentials, a composed
toolchain image, a content-addressed dependency cache, and an optional
egress network allowlist.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"minotaur version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "Override the microVM/runtime data directory")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func dataDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("data-dir")
	if dir == "" {
		if state, err := config.StateDir(); err == nil {
			return state
		}
	}
	return dir
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Materialise a sandbox and run a command inside it",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		name, _ := cmd.Flags().GetString("name")
		project, _ := cmd.Flags().GetString("project")
		image, _ := cmd.Flags().GetString("image")
		layers, _ := cmd.Flags().GetStringSlice("layers")
		envPairs, _ := cmd.Flags().GetStringArray("env")
		volumes, _ := cmd.Flags().GetStringArray("volume")
		detach, _ := cmd.Flags().GetBool("detach")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		cacheFresh, _ := cmd.Flags().GetBool("cache-fresh")
		awsFlag, _ := cmd.Flags().GetBool("aws")
		gcpFlag, _ := cmd.Flags().GetBool("gcp")
		azureFlag, _ := cmd.Flags().GetBool("azure")
		allClouds, _ := cmd.Flags().GetBool("all-clouds")
		githubFlag, _ := cmd.Flags().GetBool("github")
		sshAgent, _ := cmd.Flags().GetBool("ssh-agent")
		netMode, _ := cmd.Flags().GetString("network")
		netAllow, _ := cmd.Flags().GetStringArray("network-allow")

		env := map[string]string{}
		for _, pair := range envPairs {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("invalid -e flag %q, expected KEY=VALUE", pair)
			}
			env[k] = v
		}

		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}

		s, err := o.Run(ctx, orchestrator.RunOptions{
			Name:              name,
			ProjectDir:        project,
			Command:           args,
			Image:             image,
			Layers:            layers,
			EnvOverrides:      env,
			VolumeOverrides:   volumes,
			AWS:               awsFlag,
			GCP:               gcpFlag,
			Azure:             azureFlag,
			GitHub:            githubFlag,
			AllClouds:         allClouds,
			SSHAgent:          sshAgent,
			NetworkMode:       netMode,
			NetworkAllowRules: netAllow,
			NoCache:           noCache,
			CacheFresh:        cacheFresh,
			Detach:            detach,
		})
		if err != nil {
			return err
		}

		if detach {
			cli.Successf("started session %s (container %s)", s.Name, s.ContainerID)
			return nil
		}

		exitCode, err := o.Attach(ctx, s.Name)
		if err != nil {
			return err
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("name", "", "Session name (defaults to the project directory's basename)")
	runCmd.Flags().String("project", "", "Project directory to mount (defaults to the current directory)")
	runCmd.Flags().String("image", "", "Base image override")
	runCmd.Flags().StringSlice("layers", nil, "Toolchain layers to compose onto the base image")
	runCmd.Flags().StringArrayP("env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	runCmd.Flags().StringArray("volume", nil, "Extra volume mount host:container (repeatable)")
	runCmd.Flags().BoolP("detach", "d", false, "Start the container and return immediately")
	runCmd.Flags().Bool("no-cache", false, "Bypass the dependency cache volume for this run")
	runCmd.Flags().Bool("cache-fresh", false, "Force a fresh dependency cache volume for this run")
	runCmd.Flags().Bool("aws", false, "Inject ephemeral AWS session credentials")
	runCmd.Flags().Bool("gcp", false, "Inject a GCP access token")
	runCmd.Flags().Bool("azure", false, "Inject an Azure access token")
	runCmd.Flags().Bool("all-clouds", false, "Inject credentials for every configured provider")
	runCmd.Flags().Bool("github", false, "Inject a GitHub token")
	runCmd.Flags().Bool("ssh-agent", false, "Forward the host SSH agent socket into the container")
	runCmd.Flags().String("network", "", "Network mode: host, none, or bridge")
	runCmd.Flags().StringArray("network-allow", nil, "Egress allowlist entry host:port (repeatable)")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := config.New()
		if err != nil {
			return err
		}
		if _, statErr := os.Stat(mgr.Path()); statErr == nil {
			cli.Warnf("configuration already exists at %s", mgr.Path())
			return nil
		}
		if err := mgr.Save(config.Default()); err != nil {
			return err
		}
		cli.Successf("wrote default configuration to %s", mgr.Path())
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sandbox sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}
		sessions, err := o.List()
		if err != nil {
			return err
		}
		cli.PrintSessionTable(sessions)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a running sandbox session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}
		if err := o.Stop(ctx, args[0]); err != nil {
			return err
		}
		cli.Successf("stopped session %s", args[0])
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "Print or follow a session's container logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")

		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}
		if follow {
			return o.LogsFollow(ctx, args[0])
		}
		out, err := o.Logs(ctx, args[0], lines)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().Int("lines", 200, "Number of trailing lines to print")
}

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show sandbox session status, or dump this process's pipeline metrics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		showMetrics, _ := cmd.Flags().GetBool("metrics")
		if showMetrics {
			dump, err := metrics.Dump()
			if err != nil {
				return err
			}
			fmt.Print(dump)
			return nil
		}

		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}

		if len(args) == 1 {
			s, ok, err := o.Sessions.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("session not found: %s", args[0])
			}
			cli.PrintSessionStatus(s)
			return nil
		}

		sessions, err := o.List()
		if err != nil {
			return err
		}
		for _, s := range sessions {
			cli.PrintSessionStatus(s)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("metrics", false, "Dump Prometheus-format pipeline metrics instead")
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Verify and prepare the local runtime backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}
		ready, err := o.Runtime.IsAvailable(ctx)
		if err != nil {
			return err
		}
		if ready {
			cli.Successf("%s is ready", o.Runtime.RuntimeName())
		} else {
			cli.Warnf("%s is not ready", o.Runtime.RuntimeName())
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit minotaur's configuration",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the resolved configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clean dependency cache volumes",
}

const cacheVolumePrefix = "minotaur-cache-"

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dependency cache volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}
		volumes, err := o.Runtime.VolumeList(ctx, cacheVolumePrefix)
		if err != nil {
			return err
		}
		if len(volumes) == 0 {
			fmt.Println("No cache volumes found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VOLUME\tECOSYSTEM\tSTATE\tCREATED")
		for _, v := range volumes {
			cache, ok := volume.FromLabels(v.Name, v.Labels)
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cache.Name, cache.Ecosystem, cache.State, cache.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info [project]",
	Short: "Show detected lockfiles and cache status for a project, plus overall disk usage",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		projectDir := "."
		if len(args) == 1 {
			projectDir = args[0]
		}
		abs, err := filepath.Abs(projectDir)
		if err != nil {
			return err
		}

		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}

		lockfiles, err := lockfile.Detect(abs)
		if err != nil {
			return err
		}

		fmt.Printf("Project: %s\n\n", abs)
		if len(lockfiles) == 0 {
			fmt.Println("No lockfiles detected in this project.")
		} else {
			fmt.Println("Cache status:")
			for _, info := range lockfiles {
				name := info.VolumeName("minotaur")
				vi, err := o.Runtime.VolumeInspect(ctx, name)
				if err != nil {
					return err
				}
				state := "miss (will create)"
				if vi != nil {
					if cache, ok := volume.FromLabels(vi.Name, vi.Labels); ok {
						state = string(cache.State)
					}
				}
				fmt.Printf("  %s\t%s\t[%s]\n", info.Ecosystem, name, state)
			}
		}

		usage, err := o.Runtime.VolumeDiskUsage(ctx, cacheVolumePrefix)
		if err != nil {
			return err
		}
		var total int64
		for _, size := range usage {
			total += size
		}
		limit := volume.GBToBytes(o.Config.Cache.MaxTotalGB)
		status := volume.SizeStatusFromUsage(total, limit)
		fmt.Printf("\nTotal cache usage: %s (%s, limit %dGB)\n", volume.FormatBytes(total), status, o.Config.Cache.MaxTotalGB)
		return nil
	},
}

var cacheGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove cache volumes older than the configured (or given) age",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		days, _ := cmd.Flags().GetInt("days")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}
		if days == 0 {
			days = o.Config.Cache.GCDays
		}
		if days == 0 {
			fmt.Println("Cache GC is disabled (gc_days = 0)")
			return nil
		}

		volumes, err := o.Runtime.VolumeList(ctx, cacheVolumePrefix)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var stale []types.CacheVolume
		for _, v := range volumes {
			cache, ok := volume.FromLabels(v.Name, v.Labels)
			if !ok {
				continue
			}
			if volume.IsOlderThanDays(cache, days, now) {
				stale = append(stale, cache)
			}
		}

		if len(stale) == 0 {
			fmt.Printf("No caches older than %d days.\n", days)
			return nil
		}

		fmt.Printf("Found %d cache(s) older than %d days:\n", len(stale), days)
		for _, cache := range stale {
			ageDays := int(now.Sub(cache.CreatedAt).Hours() / 24)
			fmt.Printf("  - %s (%d days old)\n", cache.Name, ageDays)
		}

		if dryRun {
			fmt.Println("\nDry run - no caches removed.")
			return nil
		}

		removed := 0
		for _, cache := range stale {
			if err := o.Runtime.VolumeRemove(ctx, cache.Name); err != nil {
				return err
			}
			removed++
		}
		cli.Successf("removed %d cache(s)", removed)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all dependency cache volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		yes, _ := cmd.Flags().GetBool("yes")

		o, err := orchestrator.New(ctx, dataDir(cmd))
		if err != nil {
			return err
		}
		volumes, err := o.Runtime.VolumeList(ctx, cacheVolumePrefix)
		if err != nil {
			return err
		}
		if len(volumes) == 0 {
			fmt.Println("No cache volumes to clear.")
			return nil
		}

		fmt.Printf("This will remove %d cache volume(s):\n", len(volumes))
		for _, v := range volumes {
			fmt.Printf("  - %s\n", v.Name)
		}

		if !yes {
			fmt.Print("\nAre you sure? [y/N] ")
			reader := bufio.NewReader(os.Stdin)
			input, _ := reader.ReadString('\n')
			if !strings.EqualFold(strings.TrimSpace(input), "y") {
				fmt.Println("Aborted.")
				return nil
			}
		}

		removed := 0
		for _, v := range volumes {
			if err := o.Runtime.VolumeRemove(ctx, v.Name); err != nil {
				return err
			}
			removed++
		}
		cli.Successf("cleared %d cache(s)", removed)
		return nil
	},
}

func init() {
	cacheGCCmd.Flags().Int("days", 0, "Override the configured cache GC age in days")
	cacheGCCmd.Flags().Bool("dry-run", false, "List what would be removed without removing it")
	cacheClearCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheGCCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
