package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"

	"github.com/bookline/whatsgate/internal/config"
	"github.com/bookline/whatsgate/internal/store/postgres"
)

func main() {
	flagSet := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	envFile := flagSet.String("env-file", "", "dotenv file to load (default: $WHATSGATE_ENV or .env)")
	dsn := flagSet.String("dsn", "", "postgres connection string (default: DATABASE_URL, then DB_* settings)")
	reset := flagSet.Bool("reset", false, "drop every gateway table before migrating")
	_ = flagSet.Parse(os.Args[1:])

	config.LoadEnv(*envFile)
	connStr := *dsn
	if connStr == "" {
		connStr = os.Getenv("DATABASE_URL")
	}
	if connStr == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		connStr = cfg.Database.DSN()
	}

	ctx := context.Background()
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping: %v", err)
	}
	fmt.Println("✓ Connected to database")

	if *reset {
		for _, table := range postgres.Tables {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
				log.Fatalf("Failed to drop %s: %v", table, err)
			}
			fmt.Printf("✓ Dropped %s\n", table)
		}
	}

	fmt.Println("Running 001_initial_schema.up.sql...")
	if _, err := db.ExecContext(ctx, postgres.InitialSchema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	fmt.Println("✓ All migrations completed successfully")
}
