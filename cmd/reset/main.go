// reset wipes every table in one transaction and reseeds the defaults
// (Main Warehouse location, admin account). Destructive; meant for test
// devices and demo data cleanup.
//
// Usage: go run ./cmd/reset -yes
package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pos-core/internal/core"
	"pos-core/internal/db"
)

func main() {
	_ = godotenv.Load()
	log := logrus.StandardLogger()

	confirmed := flag.Bool("yes", false, "confirm the factory reset")
	flag.Parse()
	if !*confirmed {
		log.Fatal("refusing to wipe the store without -yes")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer pool.Close()

	store, err := core.Open(ctx, pool, log)
	if err != nil {
		log.WithError(err).Fatal("store open failed")
	}
	defer store.Close()

	if err := store.FactoryReset(ctx); err != nil {
		log.WithError(err).Fatal("factory reset failed")
	}
	log.Info("all tables cleared")

	if err := store.EnsureSeed(ctx); err != nil {
		log.WithError(err).Fatal("reseed failed")
	}
	log.Info("default location and admin account restored")
}
