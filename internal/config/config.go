package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/journal"
	chsink "github.com/taktline/takt/internal/journal/clickhouse"
	filesink "github.com/taktline/takt/internal/journal/file"
	sqlitesink "github.com/taktline/takt/internal/journal/sqlite"
	"github.com/taktline/takt/internal/logger"
	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/store/factory"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Server    ServerConfig        `toml:"server" mapstructure:"server"`
	Store     factory.Config      `toml:"store" mapstructure:"store"`
	Journal   JournalConfig       `toml:"journal" mapstructure:"journal"`
	Log       logger.Config       `toml:"log" mapstructure:"log"`
	Reconcile ReconcileConfig     `toml:"reconcile" mapstructure:"reconcile"`
	Processes []process.Spec      `toml:"processes" mapstructure:"processes"`
	Users     []UserConfig        `toml:"users" mapstructure:"users"`
	Texts     []JustificationText `toml:"justifications" mapstructure:"justifications"`
}

type ServerConfig struct {
	Listen    string        `toml:"listen" mapstructure:"listen"`
	BasePath  string        `toml:"base_path" mapstructure:"base_path"`
	APISecret string        `toml:"api_secret" mapstructure:"api_secret"`
	TokenTTL  time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
	Metrics   bool          `toml:"metrics" mapstructure:"metrics"`
}

type JournalConfig struct {
	SQLitePath string          `toml:"sqlite_path" mapstructure:"sqlite_path"`
	ClickHouse ClickHouseSink  `toml:"clickhouse" mapstructure:"clickhouse"`
	File       filesink.Config `toml:"file" mapstructure:"file"`
}

type ClickHouseSink struct {
	Addr  string `toml:"addr" mapstructure:"addr"`
	Table string `toml:"table" mapstructure:"table"`
}

type ReconcileConfig struct {
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
}

// UserConfig seeds one roster account. Password is hashed at load time and
// never kept in memory in the clear beyond that.
type UserConfig struct {
	ID         string `toml:"id" mapstructure:"id"`
	Username   string `toml:"username" mapstructure:"username"`
	Credential string `toml:"credential" mapstructure:"credential"`
	Password   string `toml:"password" mapstructure:"password"`
	Role       string `toml:"role" mapstructure:"role"`
	Active     bool   `toml:"active" mapstructure:"active"`
}

// JustificationText is one canned justification string for the pause or
// exit picker.
type JustificationText struct {
	Category string `toml:"category" mapstructure:"category"`
	Text     string `toml:"text" mapstructure:"text"`
}

// Load parses a TOML config file and applies defaults.
func Load(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, err
	}
	fc := FileConfig{Log: logger.DefaultConfig()}
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, err
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = ":8080"
	}
	if fc.Server.TokenTTL <= 0 {
		fc.Server.TokenTTL = 12 * time.Hour
	}
	if fc.Reconcile.Interval <= 0 {
		fc.Reconcile.Interval = 2 * time.Second
	}
	for _, spec := range fc.Processes {
		if err := spec.Validate(); err != nil {
			return FileConfig{}, fmt.Errorf("process %q: %w", spec.ID, err)
		}
	}
	return fc, nil
}

// Sinks builds the configured journal sinks. No configuration yields an
// empty fanout, which is valid: the journal is optional observability.
func (fc FileConfig) Sinks() (journal.Fanout, error) {
	var out journal.Fanout
	if fc.Journal.SQLitePath != "" {
		s, err := sqlitesink.New(fc.Journal.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("journal sqlite: %w", err)
		}
		out = append(out, s)
	}
	if fc.Journal.ClickHouse.Addr != "" {
		s, err := chsink.New(fc.Journal.ClickHouse.Addr, fc.Journal.ClickHouse.Table)
		if err != nil {
			return nil, fmt.Errorf("journal clickhouse: %w", err)
		}
		out = append(out, s)
	}
	if fc.Journal.File.Path != "" {
		s, err := filesink.New(fc.Journal.File)
		if err != nil {
			return nil, fmt.Errorf("journal file: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Roster builds the seeded user roster.
func (fc FileConfig) Roster() (*auth.Roster, error) {
	r := auth.NewRoster()
	for _, u := range fc.Users {
		if u.ID == "" || u.Credential == "" {
			return nil, fmt.Errorf("user %q requires id and credential", u.Username)
		}
		role := auth.Role(u.Role)
		switch role {
		case auth.RoleOperator, auth.RoleSupervisor, auth.RoleSuperadmin:
		default:
			return nil, fmt.Errorf("user %q: unknown role %q", u.Username, u.Role)
		}
		hash := ""
		if u.Password != "" {
			var err error
			hash, err = auth.HashPassword(u.Password)
			if err != nil {
				return nil, err
			}
		}
		r.Put(auth.User{
			ID:           u.ID,
			Username:     u.Username,
			Credential:   u.Credential,
			PasswordHash: hash,
			Role:         role,
			Active:       u.Active,
		})
	}
	return r, nil
}

// TextsByCategory groups the canned justification strings for the UI picker.
func (fc FileConfig) TextsByCategory() map[string][]string {
	out := make(map[string][]string)
	for _, t := range fc.Texts {
		if t.Category == "" || t.Text == "" {
			continue
		}
		out[t.Category] = append(out[t.Category], t.Text)
	}
	return out
}
