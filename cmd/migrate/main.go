// migrate applies every SQL file under migrations/ in lexical order.
//
// Usage: go run ./cmd/migrate [migrations-dir]
package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pos-core/internal/db"
)

func main() {
	_ = godotenv.Load()
	log := logrus.StandardLogger()

	dir := "migrations"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer pool.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.WithError(err).Fatalf("cannot read migrations directory %s", dir)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		sql, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.WithError(err).Fatalf("cannot read %s", name)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			log.WithError(err).Fatalf("migration %s failed", name)
		}
		log.WithField("file", name).Info("migration applied")
	}

	if err := pool.Ping(ctx); err != nil {
		log.WithError(err).Fatal("post-migration ping failed")
	}
	log.Infof("%d migrations applied", len(files))
}
