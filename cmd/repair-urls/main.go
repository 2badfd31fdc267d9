// Command repair-urls rewrites stored object URLs that carry a wrong bucket segment.
//
//	repair-urls -dry-run
//	repair-urls -from /undefined/ -to /media/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/radif/media/internal/config"
	"github.com/radif/media/internal/db"
	"github.com/radif/media/internal/logger"
	"github.com/radif/media/internal/repair"
)

func main() {
	cfg := config.Load()

	from := flag.String("from", "/undefined/", "path segment to replace")
	to := flag.String("to", "/"+cfg.StorageBucket+"/", "replacement path segment")
	dryRun := flag.Bool("dry-run", false, "report changes without writing them")
	flag.Parse()

	sugar, err := logger.New(!cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer sugar.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("database connection failed", "error", err)
	}
	defer pool.Close()

	report, err := repair.NewFixer(pool, sugar).Run(ctx, *from, *to, *dryRun)
	if err != nil {
		sugar.Fatalw("url repair failed", "error", err)
	}

	verb := "rewrote"
	if *dryRun {
		verb = "would rewrite"
	}
	fmt.Printf("%s %d avatar url(s) and %d media url(s)\n", verb, len(report.Users), len(report.Media))
}
