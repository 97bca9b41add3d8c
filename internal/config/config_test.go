package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/process"
)

const sampleTOML = `
[server]
listen = ":9090"
api_secret = "line-secret"
token_ttl = "1h"
metrics = true

[store]
type = "sqlite"
path = "takt.db"

[journal]
sqlite_path = "journal.db"

[reconcile]
interval = "5s"

[[processes]]
id = "pack-7"
name = "packaging line 7"
kind = "packaging"
target_units = 1000
rate_per_worker_per_minute = 10

[[processes]]
id = "annex-1"
name = "annex"
kind = "annex"

[[users]]
id = "u-1"
username = "luis"
credential = "BADGE-2"
password = "linepass"
role = "supervisor"
active = true

[[justifications]]
category = "pause"
text = "machine jam"

[[justifications]]
category = "exit"
text = "end of shift"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "takt.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	fc, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Server.Listen != ":9090" || fc.Server.TokenTTL != time.Hour {
		t.Fatalf("server config: %+v", fc.Server)
	}
	if fc.Store.Type != "sqlite" || fc.Store.Path != "takt.db" {
		t.Fatalf("store config: %+v", fc.Store)
	}
	if fc.Reconcile.Interval != 5*time.Second {
		t.Fatalf("reconcile interval: %v", fc.Reconcile.Interval)
	}
	if len(fc.Processes) != 2 {
		t.Fatalf("processes: %d", len(fc.Processes))
	}
	p := fc.Processes[0]
	if p.ID != "pack-7" || p.Kind != process.KindPackaging || p.TargetUnits != 1000 || p.RatePerWorkerPerMinute != 10 {
		t.Fatalf("process seed: %+v", p)
	}
}

func TestLoadDefaults(t *testing.T) {
	fc, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Server.Listen != ":8080" {
		t.Fatalf("default listen: %q", fc.Server.Listen)
	}
	if fc.Server.TokenTTL != 12*time.Hour {
		t.Fatalf("default ttl: %v", fc.Server.TokenTTL)
	}
	if fc.Reconcile.Interval != 2*time.Second {
		t.Fatalf("default interval: %v", fc.Reconcile.Interval)
	}
	sinks, err := fc.Sinks()
	if err != nil {
		t.Fatalf("sinks: %v", err)
	}
	if len(sinks) != 0 {
		t.Fatalf("unexpected sinks: %d", len(sinks))
	}
}

func TestLoadRejectsBadProcess(t *testing.T) {
	body := `
[[processes]]
id = "x"
kind = "unknown"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("invalid process kind accepted")
	}
}

func TestRoster(t *testing.T) {
	fc, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	roster, err := fc.Roster()
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	u, err := roster.GetByCredential("BADGE-2")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.Role != auth.RoleSupervisor || !u.Active || u.PasswordHash == "" || u.PasswordHash == "linepass" {
		t.Fatalf("seeded user: %+v", u)
	}
}

func TestRosterRejectsUnknownRole(t *testing.T) {
	body := `
[[users]]
id = "u-1"
username = "x"
credential = "B"
role = "manager"
`
	fc, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := fc.Roster(); err == nil {
		t.Fatal("unknown role accepted")
	}
}

func TestTextsByCategory(t *testing.T) {
	fc, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	texts := fc.TextsByCategory()
	if len(texts["pause"]) != 1 || texts["pause"][0] != "machine jam" {
		t.Fatalf("pause texts: %v", texts["pause"])
	}
	if len(texts["exit"]) != 1 {
		t.Fatalf("exit texts: %v", texts["exit"])
	}
}
