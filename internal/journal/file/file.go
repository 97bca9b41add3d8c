package file

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/taktline/takt/internal/journal"
)

// Default rotation parameters, following lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 30
)

// Config describes the rotating journal file.
type Config struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Sink writes journal events as JSON lines to a size-rotated file.
type Sink struct {
	mu sync.Mutex
	w  *lj.Logger
}

func New(cfg Config) (*Sink, error) {
	if cfg.Path == "" {
		return nil, errors.New("journal file sink requires path")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultMaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = DefaultMaxAgeDays
	}
	return &Sink{w: &lj.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}}, nil
}

func (s *Sink) Send(_ context.Context, e journal.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	s.mu.Lock()
	_, err = s.w.Write(b)
	s.mu.Unlock()
	return err
}

func (s *Sink) Close() error { return s.w.Close() }
