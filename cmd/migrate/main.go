// migrate applies the embedded SQL migrations to the configured database.
package main

import (
	"flag"
	"fmt"
	"os"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	url := cfg.DatabaseURL
	if cfg.StorageDriver != "postgres" {
		url = db.SQLiteURL(cfg.SQLitePath)
		// The migrate sqlite driver does not create parent directories.
		conn, err := db.Connect(cfg.StorageDriver, "", cfg.SQLitePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "database:", err)
			os.Exit(1)
		}
		_ = conn.Close()
	}

	if err := migrate.Run(url, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("migrations applied (%s)\n", *direction)
}
