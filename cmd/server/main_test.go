package main

import (
	"context"
	"testing"

	"distledger/internal/cache"
	"distledger/internal/config"
	"distledger/internal/lock"
	"distledger/internal/logging"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	for _, secret := range []string{"", "short"} {
		if err := validateSecurityConfig(config.Config{AuthSecret: secret}); err == nil {
			t.Fatalf("expected secret %q to be rejected", secret)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestConnectRedisWithoutAddressUsesLocalFallbacks(t *testing.T) {
	summaries, locker, closeFn := connectRedis(context.Background(), config.Config{}, logging.Discard())
	if _, ok := summaries.(cache.NoopSummaryCache); !ok {
		t.Fatalf("expected noop summary cache, got %T", summaries)
	}
	if _, ok := locker.(*lock.Local); !ok {
		t.Fatalf("expected local locker, got %T", locker)
	}
	if closeFn != nil {
		t.Fatalf("expected no closer without redis")
	}
}
