// Command clearindex deletes the vector collection. The next ingestion
// recreates it, and chat requests self-heal by re-ingesting documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/studywise/internal/app"
	"github.com/nikhilbhutani/studywise/internal/config"
	"github.com/nikhilbhutani/studywise/internal/database"
	"github.com/nikhilbhutani/studywise/internal/logger"
)

func main() {
	yes := flag.Bool("yes", false, "confirm deletion of the vector collection")
	flag.Parse()

	if err := run(*yes); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(yes bool) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	if !yes {
		fmt.Printf("This deletes every indexed chunk in %s collection %q.\nRe-run with -yes to proceed.\n",
			cfg.VectorStore.Backend, cfg.VectorStore.Collection)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var db *pgxpool.Pool
	if cfg.VectorStore.Backend == "pgvector" {
		db, err = database.NewPool(ctx, cfg.Database, "studywise-clearindex")
		if err != nil {
			return err
		}
		defer db.Close()
	}

	store, err := app.NewVectorStore(cfg.VectorStore, db, log)
	if err != nil {
		return err
	}
	if err := store.DeleteCollection(ctx); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	log.Info("vector collection deleted", "backend", cfg.VectorStore.Backend, "collection", cfg.VectorStore.Collection)
	return nil
}
