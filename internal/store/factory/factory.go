package factory

import (
	"fmt"

	"github.com/taktline/takt/internal/store"
	"github.com/taktline/takt/internal/store/postgres"
	"github.com/taktline/takt/internal/store/sqlite"
)

// Config selects and configures a store backend.
type Config struct {
	Type string `toml:"type" json:"type" mapstructure:"type"` // "memory", "sqlite", "postgres"
	Path string `toml:"path" json:"path" mapstructure:"path"` // sqlite file path
	DSN  string `toml:"dsn" json:"dsn" mapstructure:"dsn"`    // postgres connection string
}

// New builds a store from config. An empty type defaults to memory.
func New(cfg Config) (store.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite store requires path")
		}
		return sqlite.New(cfg.Path)
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres store requires dsn")
		}
		return postgres.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
