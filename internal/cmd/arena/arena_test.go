package arena

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("arena", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MaxPlayers != 4 {
		t.Fatalf("MaxPlayers = %d", cfg.MaxPlayers)
	}
	if cfg.LobbyCountdown != 30*time.Second {
		t.Fatalf("LobbyCountdown = %s", cfg.LobbyCountdown)
	}
	if cfg.RoundDuration != 120*time.Second {
		t.Fatalf("RoundDuration = %s", cfg.RoundDuration)
	}
	if cfg.CoinCount != 50 {
		t.Fatalf("CoinCount = %d", cfg.CoinCount)
	}
	if cfg.RewardPoolLamports != 100_000_000 {
		t.Fatalf("RewardPoolLamports = %d", cfg.RewardPoolLamports)
	}
	if cfg.TreasuryRPCURL != "" {
		t.Fatalf("TreasuryRPCURL = %q", cfg.TreasuryRPCURL)
	}
}

func TestParseConfigEnvOverride(t *testing.T) {
	t.Setenv("PENNYRUSH_ARENA_HTTP_ADDR", ":9999")
	t.Setenv("PENNYRUSH_MAX_PLAYERS", "8")
	t.Setenv("PENNYRUSH_LOBBY_COUNTDOWN", "5s")

	fs := flag.NewFlagSet("arena", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MaxPlayers != 8 {
		t.Fatalf("MaxPlayers = %d", cfg.MaxPlayers)
	}
	if cfg.LobbyCountdown != 5*time.Second {
		t.Fatalf("LobbyCountdown = %s", cfg.LobbyCountdown)
	}
}

func TestParseConfigFlagsWinOverEnv(t *testing.T) {
	t.Setenv("PENNYRUSH_ARENA_HTTP_ADDR", ":9999")

	fs := flag.NewFlagSet("arena", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-http-addr", ":7777", "-coin-count", "10"})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.HTTPAddr != ":7777" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.CoinCount != 10 {
		t.Fatalf("CoinCount = %d", cfg.CoinCount)
	}
}
