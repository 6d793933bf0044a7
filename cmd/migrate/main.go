// Aplica las migraciones de esquema embebidas en el binario, en orden léxico.
package main

import (
	"context"
	"flag"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/campuskey/campuskey/internal/config"
	migrations "github.com/campuskey/campuskey/migrations/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "Path to YAML config")
		dsn        = flag.String("dsn", "", "Overrides the DSN from config")
	)
	flag.Parse()

	target := *dsn
	if target == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config load: %v", err)
		}
		target = cfg.Storage.DSN
	}
	if target == "" {
		log.Fatal("no DSN: set storage.dsn in config or pass -dsn")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, target)
	if err != nil {
		log.Fatalf("pgxpool: %v", err)
	}
	defer pool.Close()

	files, err := listSQL()
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	if len(files) == 0 {
		log.Println("No *.sql migrations found. Nothing to do.")
		return
	}
	sort.Strings(files) // aplicar en orden ascendente

	log.Printf("Applying %d migration(s)...", len(files))
	for _, f := range files {
		sqlBytes, err := migrations.FS.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		start := time.Now()
		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}
		log.Printf("applied %s (%s)", f, time.Since(start).Round(time.Millisecond))
	}
	log.Println("Migrations completed.")
}

func listSQL() ([]string, error) {
	entries, err := migrations.FS.ReadDir(migrations.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".sql") {
			out = append(out, migrations.Dir+"/"+e.Name())
		}
	}
	return out, nil
}
