// export dumps one entity table as CSV to stdout.
//
// Usage: go run ./cmd/export <table>
package main

import (
	"context"
	"encoding/csv"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pos-core/internal/core"
	"pos-core/internal/db"
)

func main() {
	_ = godotenv.Load()
	log := logrus.StandardLogger()

	if len(os.Args) < 2 {
		log.Fatalf("usage: export <table>; tables: %s", strings.Join(core.ExportableTables(), ", "))
	}
	table := os.Args[1]

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

	dump, err := core.NewExportService(store).DumpTable(ctx, table)
	if err != nil {
		log.WithError(err).Fatalf("export of %s failed", table)
	}

	w := csv.NewWriter(os.Stdout)
	if err := w.Write(dump.Columns); err != nil {
		log.WithError(err).Fatal("write header")
	}
	for _, row := range dump.Rows {
		if err := w.Write(row); err != nil {
			log.WithError(err).Fatal("write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.WithError(err).Fatal("flush output")
	}
	log.WithFields(logrus.Fields{"table": table, "rows": len(dump.Rows)}).Info("export complete")
}
