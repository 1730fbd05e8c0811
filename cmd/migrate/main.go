// migrate applies the schema files to both stores. The default store gets
// 001_default_store.sql; the planning store (PLANNING_DATABASE_URL, falling
// back to DATABASE_URL) gets 002_planning_store.sql.
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/DieForGlory/portal-analytics-sub000/internal/db"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	stores, err := db.NewStores(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer stores.Close()

	defSQL, err := os.ReadFile("migrations/001_default_store.sql")
	if err != nil {
		log.Fatalf("read migration: %v", err)
	}
	if _, err := stores.Default.Exec(ctx, string(defSQL)); err != nil {
		log.Fatalf("default store migration: %v", err)
	}
	log.Println("default store migrated")

	planSQL, err := os.ReadFile("migrations/002_planning_store.sql")
	if err != nil {
		log.Fatalf("read migration: %v", err)
	}
	if _, err := stores.Planning.Exec(ctx, string(planSQL)); err != nil {
		log.Fatalf("planning store migration: %v", err)
	}
	log.Println("planning store migrated")
}
