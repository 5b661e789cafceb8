package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/database"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/media"
)

func main() {
	var (
		dbPath   = flag.String("db", "./readysitplay.db", "Path to the local capture store")
		status   = flag.Bool("status", false, "Show schema version only")
		backfill = flag.Bool("backfill", true, "Backfill missing mime types after migrating")
	)
	flag.Parse()

	db, err := database.Open(database.Config{Type: "sqlite", SQLitePath: *dbPath})
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	migrator := database.NewMigrator(db)
	ctx := context.Background()

	if *status {
		version, err := migrator.CurrentVersion(ctx)
		if err != nil {
			log.Fatal("Failed to read schema version:", err)
		}
		fmt.Printf("Schema version: %d (latest: %d)\n", version, len(database.Migrations()))
		return
	}

	version, err := migrator.Run(ctx)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	fmt.Printf("Schema at version %d\n", version)

	if *backfill {
		repo := database.NewCaptureRepository(db, media.NewValidator(media.DefaultMaxBlobSize))
		updated, err := repo.BackfillMIMETypes(ctx)
		if err != nil {
			log.Fatal("Failed to backfill mime types:", err)
		}
		fmt.Printf("Backfilled %d records\n", updated)
	}
}
