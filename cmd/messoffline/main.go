// Command messoffline runs the offline-first record store and edge cache, and
// offers maintenance subcommands over the same stores.
//
// @title       mess-offline API
// @version     1.0
// @description Local record store, deferred action queue and edge cache status.
// @BasePath    /api/v1
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/go-mess-offline/internal/config"
	"github.com/tbourn/go-mess-offline/internal/domain"
	"github.com/tbourn/go-mess-offline/internal/edge"
	"github.com/tbourn/go-mess-offline/internal/store"
	"github.com/tbourn/go-mess-offline/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env (when present) and the environment, then installs
// the global logger.
func loadConfig() (config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	sysutil.SetupLogging(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

// openStore opens the record store and fails fast when it is unusable. The
// caller must Close it.
func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	s := store.New(cfg.RecordsDBPath, store.WithTracing(cfg.OTEL.Enabled))
	if err := s.Init(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("opening record store %s: %w", cfg.RecordsDBPath, err)
	}
	return s, nil
}

func shellManifest(cfg config.Config) edge.Manifest {
	return edge.ManifestFrom(cfg.Edge.Shell)
}

func printActions(w io.Writer, actions []domain.QueuedAction) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tQUEUED AT\tDATA")
	for _, a := range actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			a.ID,
			a.Payload.ActionType,
			time.UnixMilli(a.Timestamp).UTC().Format(time.RFC3339),
			string(a.Payload.Data),
		)
	}
	return tw.Flush()
}

var rootCmd = &cobra.Command{
	Use:          "messoffline",
	Short:        "Offline-first record store and edge cache",
	Version:      version,
	SilenceUsage: true,
}

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the deferred action queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued actions in replay order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		actions, err := s.ListQueuedActions(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing actions: %w", err)
		}
		if len(actions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
			return nil
		}
		return printActions(cmd.OutOrStdout(), actions)
	},
}

var queueDropCmd = &cobra.Command{
	Use:   "drop <id>",
	Short: "Remove a queued action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.RemoveQueuedAction(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("dropping %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s\n", args[0])
		return nil
	},
}

// records command
var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage stored records",
}

var recordsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every record, queued actions included (logout/reset)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to clear without --yes")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("clearing records: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All records removed.")
		return nil
	},
}

var recordsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts per type",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		counts, err := s.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}
		p := message.NewPrinter(language.English)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tCOUNT")
		var total int64
		for _, c := range counts {
			p.Fprintf(tw, "%s\t%d\n", c.Type, c.Count)
			total += c.Count
		}
		p.Fprintf(tw, "total\t%d\n", total)
		return tw.Flush()
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the edge cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored cache generations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cs, err := edge.OpenCacheStorage(cfg.EdgeDBPath, false)
		if err != nil {
			return fmt.Errorf("opening edge cache %s: %w", cfg.EdgeDBPath, err)
		}
		defer cs.Close()

		names, err := cs.Keys(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing generations: %w", err)
		}
		current := shellManifest(cfg).CacheName()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tENTRIES\tCURRENT")
		for _, n := range names {
			count, err := cs.Len(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("counting %s: %w", n, err)
			}
			mark := ""
			if n == current {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", n, count, mark)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDropCmd)
	rootCmd.AddCommand(queueCmd)

	recordsCmd.AddCommand(recordsClearCmd)
	recordsCmd.AddCommand(recordsStatsCmd)
	recordsClearCmd.Flags().Bool("yes", false, "Confirm removal of every record")
	rootCmd.AddCommand(recordsCmd)

	cacheCmd.AddCommand(cacheListCmd)
	rootCmd.AddCommand(cacheCmd)
}
