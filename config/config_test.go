package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultTOMLMatchesDefault(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, DefaultTOML()))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("DefaultTOML decodes to\n%+v\nwant\n%+v", cfg, Default())
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Error("missing file should give defaults")
	}
}

func TestLoadFileLayersOnDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
[prefetch]
enabled = false
maxConcurrent = 2

[preview]
policy = "ugc"

[cache]
store = "sqlite"
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"prefetch.enabled", cfg.Prefetch.Enabled, false},
		{"prefetch.maxConcurrent", cfg.Prefetch.MaxConcurrent, 2},
		{"prefetch.excludedPrefixes", cfg.Prefetch.ExcludedPrefixes, []string{"/admin/"}},
		{"preview.policy", cfg.Preview.Policy, "ugc"},
		{"preview.hideDelayMs", cfg.Preview.HideDelayMs, 120},
		{"cache.store", cfg.Cache.Store, "sqlite"},
		{"router.enabled", cfg.Router.Enabled, true},
	}
	for _, tt := range tests {
		if !reflect.DeepEqual(tt.got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "[prefetch\n", "loading config"},
		{"unknown key", "[preview]\ndelay = 3\n", "unknown keys preview.delay"},
		{"bad store", "[cache]\nstore = \"redis\"\n", "cache.store"},
		{"bad policy", "[preview]\npolicy = \"strict\"\n", "preview.policy"},
		{"zero concurrency", "[prefetch]\nmaxConcurrent = 0\n", "maxConcurrent"},
		{"concurrency above cap", "[prefetch]\nmaxConcurrent = 8\n", "between 1 and 4"},
		{"empty content id", "[page]\ncontentId = \"\"\n", "contentId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFormatError(t *testing.T) {
	got := FormatError(os.ErrNotExist)
	if !strings.HasPrefix(got, "Configuration error:") {
		t.Errorf("FormatError = %q", got)
	}
}
