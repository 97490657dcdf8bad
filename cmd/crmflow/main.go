// Command crmflow runs the CRM analysis pipeline on top of the durable
// workflow engine.
//
// Usage:
//
//	crmflow run --contacts crm_contacts.csv --opportunities crm_opportunities.csv
//	crmflow resume <run-id>
//	crmflow runs --state running
//
// Configuration comes from flags, CRMFLOW_* environment variables, or a
// crmflow.yaml file in the working directory.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/crm"
	"github.com/craftedsys/durable/engine"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
	"github.com/craftedsys/durable/llm"
	"github.com/craftedsys/durable/middleware"
	bunstore "github.com/craftedsys/durable/store/bun"
	"github.com/craftedsys/durable/store/memory"
	redisstore "github.com/craftedsys/durable/store/redis"
)

const banner = "============================================================"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crmflow",
		Short:         "Durable CRM analysis pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("store", "memory", "history store backend (memory, postgres, redis)")
	root.PersistentFlags().String("postgres-dsn", "", "Postgres DSN for the postgres store")
	root.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address for the redis store")
	root.PersistentFlags().String("model", "", "model used for analysis calls")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.SetEnvPrefix("CRMFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetConfigName("crmflow")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()
	_ = viper.BindPFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd(), newResumeCmd(), newRunsCmd())
	return root
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// openStore builds the configured history store. The returned cleanup
// closes backend connections.
func openStore(ctx context.Context, logger *slog.Logger) (history.Store, func(), error) {
	switch backend := viper.GetString("store"); backend {
	case "memory":
		return memory.New(), func() {}, nil

	case "postgres":
		dsn := viper.GetString("postgres-dsn")
		if dsn == "" {
			return nil, nil, fmt.Errorf("postgres store requires --postgres-dsn")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db := bun.NewDB(sqldb, pgdialect.New())
		s := bunstore.New(db, bunstore.WithLogger(logger))
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		return s, func() { _ = db.Close() }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: viper.GetString("redis-addr")})
		s := redisstore.New(client, redisstore.WithLogger(logger))
		if err := s.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return s, func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func newRunner(store history.Store, logger *slog.Logger) *engine.Runner {
	var opts []llm.Option
	if model := viper.GetString("model"); model != "" {
		opts = append(opts, llm.WithModel(model))
	}
	client := llm.NewOpenAI(opts...)

	workflows := engine.NewRegistry()
	activities := activity.NewRegistry()
	pipeline := crm.NewPipeline(client, crm.WithLogger(logger))
	pipeline.Register(workflows, activities)

	return engine.NewRunner(workflows, activities, store,
		engine.WithLogger(logger),
		engine.WithEmitter(engine.SlogEmitter{Logger: logger}),
		engine.WithMiddleware(
			middleware.Logging(logger),
			middleware.Tracing(),
			middleware.Metrics(),
		),
	)
}

func printResult(result *crm.Result) error {
	fmt.Println()
	fmt.Println(banner)
	if result.Failed() {
		fmt.Printf("❌ Error: %s\n", result.Error)
		fmt.Printf("Reason: %s\n", result.Reason)
		fmt.Println(banner)
		return fmt.Errorf("%s: %s", result.Error, result.Reason)
	}

	fmt.Println("✅ Analysis completed successfully!")
	fmt.Println(banner)
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Println(string(data))
	fmt.Println(banner)
	return nil
}

func newRunCmd() *cobra.Command {
	var contactsFile, opportunitiesFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a CRM analysis run and wait for its result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := newLogger()

			store, cleanup, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runner := newRunner(store, logger)
			result := crm.Execute(ctx, runner, crm.Params{
				ContactsFile:      contactsFile,
				OpportunitiesFile: opportunitiesFile,
			})
			return printResult(result)
		},
	}

	cmd.Flags().StringVar(&contactsFile, "contacts", "crm_contacts.csv", "contacts CSV file")
	cmd.Flags().StringVar(&opportunitiesFile, "opportunities", "crm_opportunities.csv", "opportunities CSV file")
	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Resume interrupted runs after a crash",
		Long: "Resume a single run by id, or all runs still in running state " +
			"when no id is given. Completed steps are replayed from history.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()

			store, cleanup, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runner := newRunner(store, logger)

			if len(args) == 0 {
				return runner.ResumeAll(ctx)
			}

			runID, err := id.ParseRunID(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			run, err := runner.Resume(ctx, runID)
			if err != nil {
				return err
			}
			return printResult(crm.ShapeRun(run))
		},
	}
}

func newRunsCmd() *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List workflow runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := newLogger()

			store, cleanup, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := store.ListRuns(ctx, history.ListOpts{
				State: history.RunState(state),
				Limit: limit,
			})
			if err != nil {
				return err
			}

			for _, run := range runs {
				fmt.Printf("%s  %-10s  %-14s  %s\n",
					run.ID, run.State, run.Name,
					run.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs to list")
	return cmd
}
