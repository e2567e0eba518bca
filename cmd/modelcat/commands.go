package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"modelcat/internal/database"
	"modelcat/internal/logging"
	"modelcat/internal/scanner"
	"modelcat/internal/startup"
	"modelcat/internal/thumbnail"
)

func newScanCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one reconciliation scan over every library and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, err := startup.LoadConfig(c.v)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			monitor := setupMemory(cfg)

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.newScanner(monitor)
			monitor.Start()
			defer monitor.Stop()

			stats, err := s.ScanWithSource(ctx, scanner.SourceManual)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func printStats(out io.Writer, stats scanner.Stats) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "total\t%d\n", stats.TotalFiles)
	fmt.Fprintf(tw, "new\t%d\n", stats.NewFiles)
	fmt.Fprintf(tw, "moved\t%d\n", stats.MovedFiles)
	fmt.Fprintf(tw, "missing\t%d\n", stats.MissingFiles)
	fmt.Fprintf(tw, "reactivated\t%d\n", stats.ReactivatedFiles)
	fmt.Fprintf(tw, "errors\t%d\n", stats.Errors)
	_ = tw.Flush()
}

func newWatchCommand(c *cli) *cobra.Command {
	var initialScan bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch libraries and apply changes until interrupted",
		Long: "Runs the realtime watcher without the HTTP server. With --scan (the default)\n" +
			"a reconciliation scan runs first so changes made while stopped are picked up.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := startup.LoadConfig(c.v)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			monitor := setupMemory(cfg)

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := a.newWatcher()
			if err != nil {
				return err
			}
			w.Start(ctx)
			startup.LogComponentStarted("Watcher")

			s := a.newScanner(monitor)
			s.Start(ctx, 0, initialScan)

			sig, _ := waitForSignal(ctx, nil)
			startup.LogShutdownInitiated(sig)

			stopErr := w.Stop()
			s.Stop()
			startup.LogShutdownComplete()
			return stopErr
		},
	}

	cmd.Flags().BoolVar(&initialScan, "scan", true, "run a reconciliation scan before watching")
	return cmd
}

func newHistoryCommand(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scan runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cmd, c)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			runs, err := db.ListScanRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSOURCE\tDURATION\tTOTAL\tNEW\tMOVED\tMISSING\tREACTIVATED\tERRORS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
					r.StartedAt.Local().Format(time.DateTime), r.Source,
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
					r.TotalFiles, r.NewFiles, r.MovedFiles, r.MissingFiles, r.ReactivatedFiles, r.Errors)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func newPurgeCommand(c *cli) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete models missing for longer than --older-than",
		Long: "Missing models keep their tags and categories so that a file moved back is\n" +
			"recovered intact. purge hard-deletes rows that have been missing for at least\n" +
			"--older-than and removes their thumbnails.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be a positive duration")
			}

			cfg, err := startup.Resolve(c.v)
			if err != nil {
				return err
			}
			db, err := database.New(cmd.Context(), cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			purged, err := db.PurgeMissing(cmd.Context(), olderThan)
			if err != nil {
				return err
			}

			// Remove works on a disabled generator and does not create the dir.
			thumbs := thumbnail.NewGenerator(cfg.ThumbnailDir, false)
			for _, p := range purged {
				if p.Thumbnail == "" {
					continue
				}
				if err := thumbs.Remove(p.Thumbnail); err != nil {
					logging.Warn("Failed to remove thumbnail for %s: %v", p.FilePath, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "purged %d models\n", len(purged))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum time a model must have been missing (e.g. 720h)")
	_ = cmd.MarkFlagRequired("older-than")
	return cmd
}

func newLibrariesCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "libraries",
		Aliases: []string{"library", "libs"},
		Short:   "Manage library roots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List libraries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cmd, c)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			libs, err := db.ListLibraries(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATH")
			for _, lib := range libs {
				fmt.Fprintf(tw, "%s\t%s\n", lib.Name, lib.RootPath)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <path>",
		Short: "Add a library or change its path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[1])
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", args[1])
			}

			db, err := openDatabase(cmd, c)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			lib, err := db.UpsertLibrary(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "library %s -> %s\n", lib.Name, lib.RootPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a library; its models are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd, c)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			if err := db.RemoveLibrary(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, database.ErrNotFound) {
					return fmt.Errorf("no library named %q", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed library %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}

	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := os.OpenFile(output, flags, 0o644)
			if err != nil {
				if errors.Is(err, os.ErrExist) {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
				return err
			}
			if err := writeYAML(f, startup.Defaults()); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "modelcat.yaml", "file to write")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := startup.Decode(c.v)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), cfg.FileConfig)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "modelcat %s (commit %s, built %s, %s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion)
			return nil
		},
	}
}

// openDatabase opens the catalog for a short administrative command.
func openDatabase(cmd *cobra.Command, c *cli) (*database.Database, error) {
	cfg, err := startup.Resolve(c.v)
	if err != nil {
		return nil, err
	}
	return database.New(cmd.Context(), cfg.DatabasePath)
}

func closeDatabase(db *database.Database) {
	if err := db.Close(); err != nil {
		logging.Warn("Error closing database: %v", err)
	}
}
