package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"sc2builds/internal/buildorder"
	"sc2builds/internal/catalog"
	"sc2builds/internal/config"
	"sc2builds/internal/db"
	"sc2builds/internal/logging"
	"sc2builds/internal/queue"
	"sc2builds/internal/replay"
	"sc2builds/internal/server"
)

var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "buildorder",
	Short: "Reconstruct build orders from SC2 replays",
	Long: `buildorder reads StarCraft II replay files and prints the production
timeline of one player: units, structures, upgrades and morphs, each with the
supply and in-game time at which it was started.`,
	SilenceUsage: true,
}

func main() {
	addPersistentFlags()
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(playersCmd())
	rootCmd.AddCommand(serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("catalog", "", "catalog YAML layered over the built-in tables")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = v.BindPFlag("catalog_path", rootCmd.PersistentFlags().Lookup("catalog"))
	_ = v.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func loadCatalog() (*catalog.Catalog, error) {
	path := v.GetString("catalog_path")
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

func decodeFile(cat *catalog.Catalog, path string) (*buildorder.Match, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return replay.NewDecoder(cat).Decode(uuid.New(), data)
}

func parseCmd() *cobra.Command {
	var (
		opts      buildorder.Options
		asTable   bool
		anomalies bool
	)
	cmd := &cobra.Command{
		Use:   "parse <replay>",
		Short: "Print the build order of one player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog()
			if err != nil {
				return err
			}
			match, err := decodeFile(cat, args[0])
			if err != nil {
				return err
			}
			bo, err := buildorder.NewEngine(cat, buildorder.DefaultHeuristics()).Build(match, opts)
			if err != nil {
				return err
			}

			if anomalies {
				for _, a := range bo.Anomalies {
					fmt.Fprintln(os.Stderr, "warning:", a.Error())
				}
			}

			switch {
			case v.GetBool("json"):
				return printJSON(bo.Lines)
			case asTable:
				printEntries(bo)
			default:
				for _, line := range bo.Lines {
					fmt.Println(line)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Player, "player", "p", "", "player slot id or name (default: first player)")
	cmd.Flags().BoolVar(&opts.ExcludeWorkers, "exclude-workers", false, "omit worker production")
	cmd.Flags().BoolVar(&opts.ExcludeUnits, "exclude-units", false, "omit unit production")
	cmd.Flags().BoolVar(&opts.ExcludeSupply, "exclude-supply", false, "omit the supply column")
	cmd.Flags().BoolVar(&opts.ExcludeTime, "exclude-time", false, "omit the time column")
	cmd.Flags().BoolVar(&opts.Compact, "compact", false, "group actions at the same supply on one line")
	cmd.Flags().IntVar(&opts.StopSupply, "stop-supply", 0, "stop once supply exceeds this value")
	cmd.Flags().IntVar(&opts.StopTime, "stop-time", 0, "stop after this many in-game minutes")
	cmd.Flags().BoolVar(&asTable, "table", false, "render entries as a table")
	cmd.Flags().BoolVar(&opts.IllusionHeuristics, "illusion-heuristics", false, "also flag decoys by supply delta and missing tech")
	cmd.Flags().BoolVar(&anomalies, "warnings", false, "print skipped-event warnings to stderr")
	return cmd
}

func printEntries(bo *buildorder.BuildOrder) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(fmt.Sprintf("%s (%s)", bo.Player.Name, bo.Player.Faction))
	tw.AppendHeader(table.Row{"#", "Time", "Supply", "Action", "Kind", "Count"})
	for i, e := range bo.Entries {
		tw.AppendRow(table.Row{
			i + 1,
			buildorder.Timestamp(e.Seconds),
			buildorder.FormatSupply(e.Supply, e.Cap),
			e.Label,
			e.Kind.String(),
			e.Repeat(),
		})
	}
	tw.Render()
}

func playersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "players <replay>",
		Short: "List the players of a replay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog()
			if err != nil {
				return err
			}
			match, err := decodeFile(cat, args[0])
			if err != nil {
				return err
			}
			roster := server.Roster(match.Participants)
			if v.GetBool("json") {
				return printJSON(roster)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"PID", "Name", "Race"})
			for _, p := range roster.Players {
				tw.AppendRow(table.Row{p.PID, p.Name, p.Race})
			}
			if roster.Matchup != nil {
				tw.AppendFooter(table.Row{"", "Matchup", *roster.Matchup})
			}
			tw.Render()
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server. /players and /upload work standalone; the
/matches routes are enabled when DB_URL (and REDIS_URL for submissions) are set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.Logger()
			cfg := config.FromViper(v)

			cat, err := loadCatalog()
			if err != nil {
				return err
			}
			scfg := server.Config{
				Decoder:        replay.NewDecoder(cat),
				Builder:        buildorder.NewEngine(cat, buildorder.DefaultHeuristics()),
				AllowedOrigins: cfg.CORSOrigins,
				Logger:         logger,
			}

			if cfg.DBURL != "" {
				pool, err := db.NewPool(ctx, cfg.DBURL)
				if err != nil {
					return fmt.Errorf("db connection: %w", err)
				}
				defer pool.Close()
				if err := db.Migrate(ctx, pool); err != nil {
					return fmt.Errorf("db migration: %w", err)
				}
				scfg.Lines = db.NewBuildOrderWriter(pool)

				if cfg.RedisURL != "" {
					redisOpts, err := redis.ParseURL(cfg.RedisURL)
					if err != nil {
						return fmt.Errorf("invalid redis url: %w", err)
					}
					redisClient := redis.NewClient(redisOpts)
					defer redisClient.Close()
					scfg.Replays = db.NewReplayStore(pool)
					scfg.Queue = queue.NewRedisQueue(redisClient, cfg.RedisQueue)
				}
			}

			handler, err := server.New(scfg)
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			logger.Infof("serving build-order API on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :$PORT, or :5000)")
	_ = v.BindPFlag("http_addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func printJSON(x any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(x)
}
