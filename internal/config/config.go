// Package config holds process-wide configuration for the stj tool.
// The values are plain data passed explicitly to the store and sync
// engine at construction so tests can substitute isolated stores and a
// fixed dataset catalog.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config carries everything the catalog client, store and sync engine
// need. There are no ambient globals; cmd builds one of these and hands
// it down.
type Config struct {
	// BaseURL is the CKAN action API root of the STJ open-data portal.
	BaseURL string `mapstructure:"base_url"`

	// DataDir holds the database file and per-dataset scratch space for
	// extracted archives.
	DataDir string `mapstructure:"data_dir"`

	// DBPath is the SQLite database file. Defaults to <DataDir>/stj.db.
	DBPath string `mapstructure:"db_path"`

	// Datasets is the ordered catalog of known dataset names, one per
	// judging panel. A sync without an explicit dataset processes all of
	// them sequentially in this order.
	Datasets []string `mapstructure:"datasets"`

	// HTTPTimeout bounds each catalog HTTP call. No budget spans a whole
	// sync run; timeouts are per request only.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// Default returns the built-in configuration: the public STJ catalog and
// the ten espelhos-de-acordaos datasets.
func Default() Config {
	return Config{
		BaseURL: "https://dadosabertos.web.stj.jus.br/api/3/action",
		DataDir: "data",
		DBPath:  filepath.Join("data", "stj.db"),
		Datasets: []string{
			"espelhos-de-acordaos-corte-especial",
			"espelhos-de-acordaos-primeira-secao",
			"espelhos-de-acordaos-primeira-turma",
			"espelhos-de-acordaos-quarta-turma",
			"espelhos-de-acordaos-quinta-turma",
			"espelhos-de-acordaos-segunda-secao",
			"espelhos-de-acordaos-segunda-turma",
			"espelhos-de-acordaos-sexta-turma",
			"espelhos-de-acordaos-terceira-secao",
			"espelhos-de-acordaos-terceira-turma",
		},
		HTTPTimeout: 120 * time.Second,
	}
}

// Load merges an optional YAML config file and STJ_* environment
// variables over the defaults. An empty path means no file; a named file
// that does not exist is an error, silently-missing config is not a
// behavior we want for an explicit --config flag.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STJ")
	v.AutomaticEnv()

	v.SetDefault("base_url", cfg.BaseURL)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("db_path", "")
	v.SetDefault("datasets", cfg.Datasets)
	v.SetDefault("http_timeout", cfg.HTTPTimeout)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "stj.db")
	}
	return cfg, nil
}

// HasDataset reports whether name is part of the configured catalog.
func (c Config) HasDataset(name string) bool {
	for _, ds := range c.Datasets {
		if ds == name {
			return true
		}
	}
	return false
}
