package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"CoVault/internal/api"
	"CoVault/internal/ledger"
	"CoVault/internal/logger"
	"CoVault/internal/registry"
	"CoVault/internal/storage"
)

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DataPath)
	if err != nil {
		return fmt.Errorf("open storage:\n%w", err)
	}
	defer db.Close()

	ldg := ledger.New(db)
	reg := registry.New(db, ldg, nil)

	server := api.New(cfg.HTTPAddress, reg, ldg)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	logger.Info("walletd started",
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"wallets", reg.Count(),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")

	return server.Stop()
}
