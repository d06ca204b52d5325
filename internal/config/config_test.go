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

func TestLoadDefaultsToEastAfricaTime(t *testing.T) {
	t.Setenv("REPORT_UTC_OFFSET_MINUTES", "")
	t.Setenv("REPORT_ZONE_NAME", "")

	cfg := Load()
	name, offset := time.Date(2026, 1, 1, 0, 0, 0, 0, cfg.ReportLocation()).Zone()
	if name != "EAT" || offset != 3*60*60 {
		t.Fatalf("expected EAT +03:00, got %s %d", name, offset)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "many")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.LoginMaxAttempts != 5 {
		t.Fatalf("expected default login attempts 5, got %d", cfg.LoginMaxAttempts)
	}
}

func TestLoadNormalizesPostgresScheme(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/biztrack")

	cfg := Load()
	if cfg.DatabaseURL != "postgresql://u:p@db:5432/biztrack" {
		t.Fatalf("unexpected database url %q", cfg.DatabaseURL)
	}
}

func TestSeedIsOptIn(t *testing.T) {
	t.Setenv("RUN_SEED", "")
	if Load().Seed.Enabled {
		t.Fatalf("expected seeding to be disabled unless RUN_SEED=1")
	}
	t.Setenv("RUN_SEED", "1")
	if !Load().Seed.Enabled {
		t.Fatalf("expected seeding to be enabled with RUN_SEED=1")
	}
}
