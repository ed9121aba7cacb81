package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/db"
)

var configTemplate = `{
  // the subdomain of your hotel: https://<hotel_id>.otelms.com
  hotel_id: "",
  username: "",
  password: "",

  http_only: false,
  cache_dir: "dev/.state/cache",
  output_dir: "dev/.state/output",
  database: "dev/.state/otelms.db",
  timezone: "America/Lima",

  schedule: "*/30 * * * *",
  listen: "127.0.0.1:8080",

  alerts: {
    smtp: {
      server: "",
      port: 1025,
      email_address: "",
      password: "",
      recipients: [],
    },
  },
}
`

func CreateConfig() error {
	path := filepath.Join(stateDir, "config.json5")
	_, err := os.Stat(path)
	if err == nil {
		fmt.Println("config already created at", path)
		return nil
	}
	fmt.Println("creating config at", path)
	return os.WriteFile(path, []byte(configTemplate), 0600)
}

func CreateDB() error {
	path := filepath.Join(stateDir, "otelms.db")
	fmt.Println("migrating database at", path)

	clock, err := chrono.NewStandardImpl("UTC")
	if err != nil {
		return err
	}
	store, err := db.Open(context.Background(), path, clock)
	if err != nil {
		return err
	}
	return store.Close()
}

func PrintUsage() {
	config := filepath.Join(stateDir, "config.json5")
	fmt.Println()
	fmt.Println("fill in the credentials in", config, "then run:")
	fmt.Printf("  go run ./cmd/otelms-cli --config %s login\n", config)
	fmt.Printf("  go run ./cmd/otelms-cli --config %s sync\n", config)
	fmt.Printf("  go run ./cmd/otelmsd -config %s\n", config)
}
