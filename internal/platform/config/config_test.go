package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Addr string `env:"PENNYRUSH_CONFIG_TEST_ADDR" envDefault:":7777"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":7777" {
		t.Fatalf("expected default addr :7777, got %q", cfg.Addr)
	}
}

func TestParseEnvOverride(t *testing.T) {
	t.Setenv("PENNYRUSH_CONFIG_TEST_ADDR", ":9999")

	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("expected env addr :9999, got %q", cfg.Addr)
	}
}

type badEnvConfig struct {
	Count int `env:"PENNYRUSH_CONFIG_TEST_COUNT"`
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("PENNYRUSH_CONFIG_TEST_COUNT", "not-an-int")

	var cfg badEnvConfig
	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
