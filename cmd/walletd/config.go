package main

import (
	"flag"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string `toml:"data_path"`

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string `toml:"http_address"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		DataPath:    "./data",
		HTTPAddress: ":8080",
	}
}

// loadConfig merges defaults, an optional TOML file, and command-line
// flags. Flags passed explicitly win over the file; the file wins over
// the defaults.
func loadConfig() (*Config, error) {
	cfg := defaultConfig()

	var configPath string
	flag.StringVar(&configPath, "config", "", "TOML configuration file path")
	flag.StringVar(&cfg.DataPath, "data", cfg.DataPath, "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", cfg.HTTPAddress, "HTTP API address")
	flag.Parse()

	if configPath == "" {
		return cfg, nil
	}

	fileCfg := defaultConfig()
	if _, err := toml.DecodeFile(configPath, fileCfg); err != nil {
		return nil, fmt.Errorf("load config %s:\n%w", configPath, err)
	}

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	if !explicit["data"] {
		cfg.DataPath = fileCfg.DataPath
	}
	if !explicit["http"] {
		cfg.HTTPAddress = fileCfg.HTTPAddress
	}

	return cfg, nil
}
