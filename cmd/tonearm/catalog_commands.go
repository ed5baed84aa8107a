package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tonearm/internal/catalog"
	"tonearm/internal/config"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the local recording catalog",
	}

	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	catalogCmd.AddCommand(newCatalogListCommand(ctx))

	return catalogCmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import [seed.yaml]",
		Short: "Import recordings from a YAML seed file",
		Long:  "Import recordings from a YAML seed file. Without an argument the configured\ncatalog.seed_path is used. Existing recordings with the same id are replaced.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Catalog.SeedPath
			if len(args) == 1 {
				if path, err = config.ExpandPath(args[0]); err != nil {
					return fmt.Errorf("resolve seed path: %w", err)
				}
			}
			if strings.TrimSpace(path) == "" {
				return fmt.Errorf("no seed file given and catalog.seed_path is not set")
			}
			return withCatalog(ctx, func(cat *catalog.Catalog) error {
				count, err := cat.ImportSeed(cmd.Context(), path)
				if err != nil {
					return err
				}
				total, err := cat.Len(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d recordings from %s (%d in catalog)\n", count, path, total)
				return nil
			})
		},
	}
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	var search string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(ctx, func(cat *catalog.Catalog) error {
				var recordings []queue.Recording
				var scores []float64
				if query := strings.TrimSpace(search); query != "" {
					hits, err := cat.Search(cmd.Context(), parseCatalogQuery(query), 0, limit)
					if err != nil {
						return err
					}
					for _, hit := range hits {
						recordings = append(recordings, hit.Recording)
						scores = append(scores, hit.Score)
					}
				} else {
					all, err := cat.Recordings(cmd.Context())
					if err != nil {
						return err
					}
					recordings = all
					if limit > 0 && len(recordings) > limit {
						recordings = recordings[:limit]
					}
				}

				if asJSON {
					return writeJSON(cmd, recordings)
				}
				out := cmd.OutOrStdout()
				if len(recordings) == 0 {
					if strings.TrimSpace(search) != "" {
						fmt.Fprintln(out, "No matching recordings")
					} else {
						fmt.Fprintln(out, "Catalog is empty")
					}
					return nil
				}
				headers := []string{"ID", "Artist", "Title", "Album", "Track"}
				if scores != nil {
					headers = append(headers, "Score")
				}
				rows := make([][]string, 0, len(recordings))
				for i, rec := range recordings {
					track := ""
					if rec.TrackNumber > 0 {
						track = strconv.Itoa(rec.TrackNumber)
					}
					row := []string{rec.ID, rec.Artist, rec.Title, rec.Album, track}
					if scores != nil {
						row = append(row, strconv.FormatFloat(scores[i], 'f', 3, 64))
					}
					rows = append(rows, row)
				}
				fmt.Fprint(out, renderTable(headers, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Rank recordings against \"artist - title\" or a bare title")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of recordings to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// parseCatalogQuery splits "artist - title" into its fields; anything else is
// treated as a title.
func parseCatalogQuery(value string) catalog.Query {
	if artist, title, ok := strings.Cut(value, " - "); ok {
		return catalog.Query{Artist: strings.TrimSpace(artist), Title: strings.TrimSpace(title)}
	}
	return catalog.Query{Title: strings.TrimSpace(value)}
}

func withCatalog(ctx *commandContext, fn func(*catalog.Catalog) error) error {
	store, err := ctx.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(catalog.New(store, logging.NewNop()))
}
