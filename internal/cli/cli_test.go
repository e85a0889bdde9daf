package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/courtcrawl/internal/discover"
	"github.com/ppiankov/courtcrawl/internal/model"
)

func TestBuildConfig_Defaults(t *testing.T) {
	cfg, err := buildConfig(viper.New(), false, false)
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}
	if cfg.Discovery.Ceiling != 9999 || cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Cache.Enabled || !cfg.Site.RespectRobots {
		t.Error("expected cache and robots enabled by default")
	}
}

func TestBuildConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `discovery:
  ceiling: 500
  chained: [A, B]
http:
  timeout: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("COURTCRAWL_CONCURRENCY_WORKERS", "9")
	t.Setenv("COURTCRAWL_DISCOVERY_CEILING", "700")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("COURTCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	cfg, err := buildConfig(v, true, true)
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}

	if cfg.Discovery.Ceiling != 700 {
		t.Errorf("expected env to override file ceiling, got %d", cfg.Discovery.Ceiling)
	}
	if len(cfg.Discovery.Chained) != 2 {
		t.Errorf("expected chained from file, got %v", cfg.Discovery.Chained)
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("expected timeout from file, got %v", cfg.HTTP.Timeout)
	}
	if cfg.Concurrency.Workers != 9 {
		t.Errorf("expected workers from env, got %d", cfg.Concurrency.Workers)
	}
	if cfg.Cache.Enabled || cfg.Site.RespectRobots {
		t.Error("expected --no-cache and --ignore-robots to apply")
	}
}

func TestBuildConfig_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("concurrency.workers", 0)
	if _, err := buildConfig(v, false, false); err == nil {
		t.Error("expected validation error")
	}
}

func TestBuildConfig_VerboseEnablesDebug(t *testing.T) {
	v := viper.New()
	v.Set("output.verbose", true)
	cfg, err := buildConfig(v, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}
	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected refusal to overwrite existing config")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("written config is not readable: %v", err)
	}
	cfg, err := buildConfig(v, false, false)
	if err != nil {
		t.Fatalf("written config is not valid: %v", err)
	}
	if cfg.Site.SearchPath != model.DefaultConfig().Site.SearchPath {
		t.Errorf("unexpected search path %q", cfg.Site.SearchPath)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := newLogger(model.LogConfig{Level: "debug", Format: format})
		if err != nil {
			t.Fatalf("newLogger(%s) failed: %v", format, err)
		}
		if !l.Core().Enabled(-1) {
			t.Errorf("expected debug enabled for %s", format)
		}
	}
	if _, err := newLogger(model.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for bad level")
	}
}

func TestRenderRanges(t *testing.T) {
	oracle := discover.OracleFunc(func(_ context.Context, k discover.CaseKey) (bool, error) {
		return k.Category == "A" && k.Serial < 4, nil
	})
	cfg := discover.DefaultConfig()
	cfg.Ceiling = 20
	ranges, err := discover.NewDiscoverer(oracle, cfg, nil).Discover(context.Background(), 2024)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	renderRanges(&buf, ranges)

	// go-pretty upper-cases titles, headers and footers by default
	out := strings.ToUpper(buf.String())
	for _, want := range []string{"CATEGORY", "TOTAL", "2024"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table:\n%s", want, out)
		}
	}
}
