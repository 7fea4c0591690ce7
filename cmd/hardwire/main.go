package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"hardwire/internal/app"
	"hardwire/internal/config"
	"hardwire/internal/hardwire"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// runName identifies the CLI command in log lines (e.g. "serve", "archive").
func newApp(ctx context.Context, runName string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(ctx, cfg, runName)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "hardwire",
	Short:        "Share files over HTTP and build archives",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		var shareRoot string
		if root, _ := cmd.Flags().GetString("root"); root != "" {
			abs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving share root: %w", err)
			}
			shareRoot = abs
		}
		cfg := defaults.NewConfig(shareRoot)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Share Root: %s\n", cfg.Indexer.Root)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Listen:      %s\n", cfg.Server.Addr)
		fmt.Printf("Public URL:  %s\n", cfg.Server.PublicURL)
		fmt.Printf("Share Root:  %s\n", cfg.Indexer.Root)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		vaultType := cfg.Vault.Type
		if vaultType == "" {
			vaultType = "none"
		}
		fmt.Printf("Vault:       %s\n", vaultType)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(cmd.Context())
	},
}

// publish command
var publishCmd = &cobra.Command{
	Use:   "publish FILE...",
	Short: "Create a share link for files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")

		a, err := newApp(cmd.Context(), "publish")
		if err != nil {
			return err
		}
		defer a.Close()

		url, files, err := a.Publish(cmd.Context(), args, ttl)
		if err != nil {
			return fmt.Errorf("publishing: %w", err)
		}

		fmt.Println(url)
		for _, f := range files {
			fmt.Printf("  %s/%d  %s  %d bytes\n", url, f.ID, f.Path, f.FileSize)
		}
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive [FILE...]",
	Short: "Build a zip archive of files or a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		output, _ := cmd.Flags().GetString("output")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		in := hardwire.ArchiveJobInput{OutputPath: output}
		if dir != "" {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving directory: %w", err)
			}
			in.Directory = abs
		}
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			in.Files = append(in.Files, abs)
		}
		if err := in.Validate(); err != nil {
			return err
		}
		if encrypt {
			password, err := readPassword()
			if err != nil {
				return err
			}
			in.Password = password
		}

		a, err := newApp(cmd.Context(), "archive")
		if err != nil {
			return err
		}
		defer a.Close()

		last := -1
		task, err := a.Archive(cmd.Context(), in, func(t *hardwire.Task) {
			if t.Progress != last {
				last = t.Progress
				fmt.Printf("\r%3d%%", t.Progress)
			}
		})
		fmt.Println()
		if err != nil {
			return fmt.Errorf("archiving: %w", err)
		}
		if task.Status == hardwire.TaskFailed {
			return fmt.Errorf("task %s failed: %s", task.ID, task.Error)
		}

		fmt.Printf("Archive: %s (%d entries, %d bytes)\n", task.Output.ArchivePath, task.Output.Entries, task.Output.SizeBytes)
		if task.Output.VaultLocation != "" {
			fmt.Printf("Vault:   %s\n", task.Output.VaultLocation)
		}
		return nil
	},
}

// readPassword prompts twice on the terminal and requires both entries to match.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--encrypt requires an interactive terminal")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if len(first) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

// task command
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect background tasks",
}

var taskStatusCmd = &cobra.Command{
	Use:   "status ID",
	Short: "Show a task's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "task-status")
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.TaskStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:       %s\n", t.ID)
		fmt.Printf("Status:   %s\n", t.Status)
		fmt.Printf("Progress: %d%%\n", t.Progress)
		fmt.Printf("Created:  %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
		if t.FinishedAt != nil {
			fmt.Printf("Finished: %s\n", t.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		if t.Error != "" {
			fmt.Printf("Error:    %s\n", t.Error)
		}
		if t.Output != nil {
			fmt.Printf("Archive:  %s\n", t.Output.ArchivePath)
		}
		return nil
	},
}

// downloads command
var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "View recent downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "downloads")
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.Downloads(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No downloads recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tSTATUS\tSIZE\tDURATION\tCLIENT\tFILE")
		for _, s := range sessions {
			duration := "-"
			if s.FinishedAt != nil {
				duration = s.FinishedAt.Sub(s.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				s.StartedAt.Format("2006-01-02 15:04:05"),
				s.Status,
				s.FileSize,
				duration,
				s.IPAddress,
				s.FilePath,
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		stats, err := a.DownloadStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("\n%d downloads, %d complete (%.1f%%)\n", stats.TotalDownloads, stats.CompletedDownloads, stats.SuccessRate)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("root", "", "Directory to share (default: <base_dir>/shared)")
	configCmd.AddCommand(configListCmd)

	// task subcommands
	taskCmd.AddCommand(taskStatusCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().Duration("ttl", 0, "Link lifetime, e.g. 72h (0 never expires)")
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringP("dir", "d", "", "Archive this directory instead of FILE arguments")
	archiveCmd.Flags().StringP("output", "o", "", "Output path, relative to the archive dir unless absolute")
	archiveCmd.Flags().Bool("encrypt", false, "Prompt for a password and encrypt the archive")
	archiveCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(downloadsCmd)
	downloadsCmd.Flags().IntP("limit", "n", 20, "Maximum number of downloads to show")
}
