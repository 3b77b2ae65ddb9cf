package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  host: db\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Matching.Threshold != 0.5 {
		t.Errorf("threshold = %v, want 0.5", cfg.Matching.Threshold)
	}
	if cfg.Matching.Dimension != 512 {
		t.Errorf("dimension = %d, want 512", cfg.Matching.Dimension)
	}
	if cfg.Cooldown.Window != 3*time.Second {
		t.Errorf("cooldown window = %v, want 3s", cfg.Cooldown.Window)
	}
	if cfg.Sync.CheckInterval != time.Minute {
		t.Errorf("check interval = %v, want 1m", cfg.Sync.CheckInterval)
	}
	if cfg.Attendance.RetryAttempts != 3 || cfg.Attendance.RetryBackoff != 2*time.Second {
		t.Errorf("retry = %d/%v, want 3/2s", cfg.Attendance.RetryAttempts, cfg.Attendance.RetryBackoff)
	}

	loc, err := cfg.Attendance.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	_, offset := time.Date(2025, 8, 27, 0, 0, 0, 0, loc).Zone()
	if offset != 8*3600 {
		t.Errorf("offset = %d, want %d", offset, 8*3600)
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
matching:
  threshold: 0.6
cooldown:
  window: 5s
attendance:
  utc_offset: "-05:00"
sync:
  manual: true
`)
	t.Setenv("FD_MATCH_THRESHOLD", "0.7")
	t.Setenv("FD_DB_HOST", "pg.internal")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Matching.Threshold != 0.7 {
		t.Errorf("env override lost: threshold = %v", cfg.Matching.Threshold)
	}
	if cfg.Database.Host != "pg.internal" {
		t.Errorf("db host = %q", cfg.Database.Host)
	}
	if cfg.Cooldown.Window != 5*time.Second {
		t.Errorf("cooldown window = %v", cfg.Cooldown.Window)
	}
	if !cfg.Sync.Manual {
		t.Error("sync.manual not read")
	}
	loc, err := cfg.Attendance.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if _, off := time.Now().In(loc).Zone(); off != -5*3600 {
		t.Errorf("offset = %d", off)
	}
}

func TestLoad_RejectsBadThreshold(t *testing.T) {
	if _, err := Load(writeConfig(t, "matching:\n  threshold: 1.5\n")); err == nil {
		t.Fatal("expected error for threshold > 1")
	}
}

func TestLoad_RecordDeadlineFitsWriteTimeout(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  host: db\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Attendance.RecordDeadline >= cfg.Server.WriteTimeout {
		t.Errorf("default record deadline %v not below write timeout %v",
			cfg.Attendance.RecordDeadline, cfg.Server.WriteTimeout)
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"deadline above write timeout", "server:\n  write_timeout: 30s\nattendance:\n  record_deadline: 40s\n", true},
		{"deadline equal to write timeout", "server:\n  write_timeout: 30s\nattendance:\n  record_deadline: 30s\n", true},
		{"short write timeout", "server:\n  write_timeout: 10s\n", true},
		{"both raised", "server:\n  write_timeout: 60s\nattendance:\n  record_deadline: 45s\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Load: %v", err)
			}
		})
	}
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"+08:00", 8 * 3600, false},
		{"-05:30", -(5*3600 + 30*60), false},
		{"Z", 0, false},
		{"+00:00", 0, false},
		{"+15:00", 0, true},
		{"eight", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := ParseOffset(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseOffset(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOffset(%q): %v", tt.in, err)
			}
			if _, off := time.Unix(0, 0).In(loc).Zone(); off != tt.want {
				t.Errorf("ParseOffset(%q) offset = %d, want %d", tt.in, off, tt.want)
			}
		})
	}
}
