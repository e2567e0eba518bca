package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modelcat/internal/archive"
	"modelcat/internal/database"
)

func newModelsCommand(c *cli) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List catalogued models by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := database.Status(status)
			if st != database.StatusActive && st != database.StatusMissing {
				return fmt.Errorf("--status must be %q or %q", database.StatusActive, database.StatusMissing)
			}

			db, err := openDatabase(cmd, c)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			models, err := db.ListModelsByStatus(cmd.Context(), nil, st)
			if err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), models)
		},
	}

	cmd.Flags().StringVar(&status, "status", string(database.StatusActive), "status to list (active or missing)")
	return cmd
}

func newSearchCommand(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search active models by name and path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd, c)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			models, err := db.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), models)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results")
	return cmd
}

func printModels(out io.Writer, models []*database.Model) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tFORMAT\tPATH")
	for _, m := range models {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.ID, m.Status, m.Metadata.Format, m.FilePath)
	}
	return tw.Flush()
}

func newTagCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tag",
		Aliases: []string{"tags"},
		Short:   "Manage model tags",
	}

	// withModel opens the catalog and resolves the model named by path.
	withModel := func(cmd *cobra.Command, path string, fn func(db *database.Database, m *database.Model) error) error {
		db, err := openDatabase(cmd, c)
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		m, err := lookupModel(cmd, db, path)
		if err != nil {
			return err
		}
		return fn(db, m)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <path> <tag>...",
		Short: "Add tags to a model",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModel(cmd, args[0], func(db *database.Database, m *database.Model) error {
				for _, tag := range args[1:] {
					if err := db.AddTagToModel(cmd.Context(), m.ID, tag); err != nil {
						return err
					}
				}
				return printTags(cmd, db, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <path> <tag>...",
		Aliases: []string{"remove"},
		Short:   "Remove tags from a model",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModel(cmd, args[0], func(db *database.Database, m *database.Model) error {
				for _, tag := range args[1:] {
					if err := db.RemoveTagFromModel(cmd.Context(), m.ID, tag); err != nil {
						return err
					}
				}
				return printTags(cmd, db, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <path> [tag]...",
		Short: "Replace all tags of a model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModel(cmd, args[0], func(db *database.Database, m *database.Model) error {
				if err := db.SetModelTags(cmd.Context(), m.ID, args[1:]); err != nil {
					return err
				}
				return printTags(cmd, db, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls [path]",
		Short: "List all tags, or the tags of one model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return withModel(cmd, args[0], func(db *database.Database, m *database.Model) error {
					return printTags(cmd, db, m)
				})
			}

			db, err := openDatabase(cmd, c)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			tags, err := db.GetAllTags(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TAG\tMODELS")
			for _, t := range tags {
				fmt.Fprintf(tw, "%s\t%d\n", t.Name, t.ItemCount)
			}
			return tw.Flush()
		},
	})

	return cmd
}

func printTags(cmd *cobra.Command, db *database.Database, m *database.Model) error {
	tags, err := db.GetModelTags(cmd.Context(), m.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", m.FilePath, strings.Join(tags, ", "))
	return nil
}

// lookupModel finds the model for a file path or an "archive.zip::entry"
// path, either of which may be relative to the working directory.
func lookupModel(cmd *cobra.Command, db *database.Database, path string) (*database.Model, error) {
	key, err := catalogPath(path)
	if err != nil {
		return nil, err
	}
	m, err := db.GetModelByPath(cmd.Context(), nil, key)
	if err != nil {
		return nil, fmt.Errorf("no model at %s: %w", key, err)
	}
	return m, nil
}

func catalogPath(path string) (string, error) {
	if archivePath, entry, ok := archive.SplitSyntheticPath(path); ok {
		abs, err := filepath.Abs(archivePath)
		if err != nil {
			return "", err
		}
		return archive.SyntheticPath(abs, entry), nil
	}
	return filepath.Abs(path)
}
