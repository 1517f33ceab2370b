package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/perculacms/aicore/internal/config"
	"github.com/perculacms/aicore/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	loader := config.NewLoader(*configPath, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := loader.Load(); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg := loader.Config()

	m, err := store.NewMigrator(cfg.Database)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	if err := store.Apply(m, *direction, *steps); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	v, dirty, _ := m.Version()
	fmt.Printf("migration %s complete (driver: %s, version: %d, dirty: %v)\n", *direction, cfg.Database.Driver, v, dirty)
}
