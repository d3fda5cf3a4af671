package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (c *testConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("GEOTRACKER_TEST_NAME", "field")
	p := writeFile(t, "name: ${GEOTRACKER_TEST_NAME}\nport: 8080\n")

	var cfg testConfig
	if err := Load(p, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "field" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	p := writeFile(t, "name: x\nport: 1\nprot: 2\n")

	var cfg testConfig
	err := Load(p, &cfg)
	if err == nil || !strings.Contains(err.Error(), "prot") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestLoad_Validates(t *testing.T) {
	p := writeFile(t, "name: x\n")

	cfg := testConfig{}
	if err := Load(p, &cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	p := writeFile(t, "")

	cfg := testConfig{Name: "default", Port: 80}
	if err := Load(p, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "default" || cfg.Port != 80 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadWithDefaults_Fallback(t *testing.T) {
	def := writeFile(t, "port: 9\n")

	var cfg testConfig
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9 {
		t.Errorf("port = %d", cfg.Port)
	}
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &cfg); err == nil {
		t.Error("expected not found error")
	}
}
