package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tonearm/internal/acoustid"
	"tonearm/internal/ipc"
	"tonearm/internal/logging"
	"tonearm/internal/lookupcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the fingerprint lookup cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var list bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show lookup cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := openLookupCache(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cache == nil {
				fmt.Fprintln(out, warn)
				return nil
			}
			stats := cache.Stats()
			if asJSON {
				return writeJSON(cmd, stats)
			}
			fmt.Fprint(out, renderFields([][2]string{
				{"Path", stats.Path},
				{"Entries", strconv.Itoa(stats.Entries)},
				{"Expired", strconv.Itoa(stats.Expired)},
				{"TTL", cache.TTL().String()},
			}))
			if !list {
				return nil
			}
			entries := cache.List()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Cached lookups: none")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				state := "valid"
				if entry.Expired(now) {
					state = "expired"
				}
				rows = append(rows, []string{
					truncate(entry.Key, 24),
					strconv.Itoa(len(entry.Value)),
					topMatch(entry.Value),
					entry.CachedAt.Local().Format(time.DateTime),
					state,
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Fingerprint", "Matches", "Top match", "Cached", "State"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List cached lookups")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired lookups",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			removed, handled, err := withDaemonCache(ctx, (*ipc.Client).CachePrune)
			if err != nil {
				return err
			}
			if !handled {
				cache, warn, err := openLookupCache(ctx)
				if err != nil {
					return err
				}
				if cache == nil {
					fmt.Fprintln(out, warn)
					return nil
				}
				if removed, err = cache.Prune(); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Removed %d expired lookups\n", removed)
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached lookup",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			removed, handled, err := withDaemonCache(ctx, (*ipc.Client).CacheClear)
			if err != nil {
				return err
			}
			if !handled {
				cache, warn, err := openLookupCache(ctx)
				if err != nil {
					return err
				}
				if cache == nil {
					fmt.Fprintln(out, warn)
					return nil
				}
				removed = cache.Count()
				if err := cache.Clear(); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Cleared %d cached lookups\n", removed)
			return nil
		},
	}
}

// withDaemonCache runs a cache maintenance call against a running daemon so
// its in-memory cache and the file stay in step. handled is false when no
// daemon answers and the caller should edit the file directly.
func withDaemonCache(ctx *commandContext, call func(*ipc.Client) (*ipc.CacheResponse, error)) (int, bool, error) {
	client, err := ipc.Dial(ctx.socketPath())
	if err != nil {
		return 0, false, nil
	}
	defer client.Close()
	resp, err := call(client)
	if err != nil {
		return 0, true, fmt.Errorf("daemon cache maintenance: %w", err)
	}
	return resp.Removed, true, nil
}

// openLookupCache loads the persisted cache. A nil cache with a message is
// returned when persistence is disabled.
func openLookupCache(ctx *commandContext) (*lookupcache.Cache[[]acoustid.Match], string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	if !cfg.AcoustID.PersistCache {
		return nil, "Lookup cache persistence is disabled (acoustid.persist_cache = false); lookups are cached in daemon memory only", nil
	}
	return lookupcache.New[[]acoustid.Match](cfg.LookupCachePath(), cfg.CacheTTL(), logging.NewNop()), "", nil
}

func topMatch(matches []acoustid.Match) string {
	if len(matches) == 0 {
		return "no match"
	}
	best := matches[0]
	label := joinNonEmpty(" - ", best.Artist(), best.Title)
	if label == "" {
		label = best.RecordingID
	}
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(label), strconv.FormatFloat(best.Score, 'f', 2, 64))
}
