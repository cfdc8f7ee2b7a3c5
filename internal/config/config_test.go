package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUSINESS_TZ_OFFSET_HOURS", "")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()
	if cfg.BusinessTZOffsetHours != 7 {
		t.Errorf("BusinessTZOffsetHours = %d, want 7", cfg.BusinessTZOffsetHours)
	}
	if cfg.ReportCacheTTLSeconds != 60 {
		t.Errorf("ReportCacheTTLSeconds = %d, want 60", cfg.ReportCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Errorf("AccessTokenTTLMinutes = %d, want 480", cfg.AccessTokenTTLMinutes)
	}
}

func TestLoadOffsetOverride(t *testing.T) {
	t.Setenv("BUSINESS_TZ_OFFSET_HOURS", "9")

	cfg := Load()
	if cfg.BusinessTZOffsetHours != 9 {
		t.Errorf("BusinessTZOffsetHours = %d, want 9", cfg.BusinessTZOffsetHours)
	}
}
