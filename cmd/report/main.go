package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chainproof-ledger/internal/config"
	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/reporting"
	"chainproof-ledger/internal/storage"
	chstore "chainproof-ledger/internal/storage/clickhouse"
	pgstore "chainproof-ledger/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHAINPROOF_CONFIG"), "Path to YAML config file (program ids)")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated files")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (ledger state and events)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (event sink and daily rollup)")
	days := flag.Int("days", 7, "Report window in days, ending now")
	flag.Parse()

	ctx := context.Background()

	if *postgresDSN == "" && *clickhouseDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn or --clickhouse-dsn is required")
		os.Exit(1)
	}
	if *days <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --days must be positive")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	var (
		events storage.EventStore
		reader reporting.LedgerReader
		daily  reporting.DailyCountSource
	)

	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN, 2)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()

		engine, err := newEngine(cfg, pgstore.NewAccountStore(pool))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building ledger: %v\n", err)
			os.Exit(1)
		}
		reader = engine
		events = pgstore.NewEventStore(pool)
	}

	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()

		chEvents := chstore.NewEventStore(conn)
		// ClickHouse holds the full event history; prefer it over postgres.
		events = chEvents
		daily = func(ctx context.Context) ([]reporting.DailyCountRow, error) {
			counts, err := chEvents.DailyCounts(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([]reporting.DailyCountRow, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, reporting.DailyCountRow{Day: c.Day, Name: c.Name, Events: c.Events})
			}
			return rows, nil
		}
	}

	gen := reporting.NewGenerator(events, reader)
	if daily != nil {
		gen = gen.WithDailyCounts(daily)
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(*days) * 24 * time.Hour)
	report, err := gen.Generate(ctx, from.Unix(), to.Unix())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output dir: %v\n", err)
		os.Exit(1)
	}
	files := map[string]string{
		"ACTIVITY_REPORT.md":     reporting.RenderMarkdown(report),
		"DAILY_EVENT_COUNTS.csv": reporting.RenderDailyCSV(report.DailyCounts),
		"PROJECTS.csv":           reporting.RenderProjectsCSV(report.Projects),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(*outputDir, name), []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	fmt.Println("Activity report generated successfully:")
	fmt.Printf("  - %s/ACTIVITY_REPORT.md\n", *outputDir)
	fmt.Printf("  - %s/DAILY_EVENT_COUNTS.csv\n", *outputDir)
	fmt.Printf("  - %s/PROJECTS.csv\n", *outputDir)
}

// newEngine builds a read-only view of the ledger over store.
func newEngine(cfg config.Config, store storage.AccountStore) (*ledger.Engine, error) {
	addrs, err := cfg.ProgramAddresses()
	if err != nil {
		return nil, err
	}
	deriver := idhash.NewDeriver(addrs.Program, addrs.TokenProgram, addrs.AssociatedTokenProgram)
	tokens := custody.NewTokenProgram(addrs.StakeMint, addrs.TokenProgram)
	return ledger.NewEngine(store, deriver, tokens, cfg.LedgerParams()), nil
}
