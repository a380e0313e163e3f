package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "LOG_FORMAT", "SUMMARY_CACHE_TTL_SECONDS", "LOCK_TTL_SECONDS", "TIMEZONE", "ACCESS_TOKEN_TTL_MINUTES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log settings %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.SummaryTTL() != 30*time.Second || cfg.LockTTL() != 10*time.Second || cfg.TokenTTL() != 8*time.Hour {
		t.Fatalf("unexpected durations %s %s %s", cfg.SummaryTTL(), cfg.LockTTL(), cfg.TokenTTL())
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v (%v)", loc, err)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("LOCK_TTL_SECONDS", "soon")
	t.Setenv("SUMMARY_CACHE_TTL_SECONDS", "-5")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	if cfg.LockTTLSeconds != 10 || cfg.SummaryCacheTTLSeconds != 30 {
		t.Fatalf("expected fallbacks, got lock=%d summary=%d", cfg.LockTTLSeconds, cfg.SummaryCacheTTLSeconds)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("expected redis db 3, got %d", cfg.RedisDB)
	}
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	cfg := Config{Timezone: "Mars/Olympus"}
	if _, err := cfg.Location(); err == nil {
		t.Fatalf("expected unknown timezone to be rejected")
	}
}
