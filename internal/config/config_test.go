package config

import (
	"testing"
	"time"
)

func testVars() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/dansa_test",
		"REDIS_URL":    "redis://localhost:6379/1",
		"JWT_SECRET":   "test-secret",
		"CATALOG_URL":  "http://localhost:9090/graphql",
	}
}

func TestLoadForTestsDefaults(t *testing.T) {
	cfg, err := LoadForTests(testVars())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Currency != "gbp" {
		t.Fatalf("expected default currency gbp, got %q", cfg.Currency)
	}
	if cfg.BasketTTL != 168*time.Hour {
		t.Fatalf("unexpected basket ttl %v", cfg.BasketTTL)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("unexpected retry attempts %d", cfg.RetryMaxAttempts)
	}
	if got := cfg.HTTPAddr(); got != ":8080" {
		t.Fatalf("unexpected addr %q", got)
	}
}

func TestLoadForTestsOverrides(t *testing.T) {
	vars := testVars()
	vars["CURRENCY"] = "EUR"
	vars["BASKET_WRITE_MAX"] = "5"
	vars["REGISTRATION_FEE_PENCE"] = "2500"
	cfg, err := LoadForTests(vars)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Currency != "eur" {
		t.Fatalf("currency not normalised: %q", cfg.Currency)
	}
	if cfg.BasketWriteMax != 5 {
		t.Fatalf("unexpected write max %d", cfg.BasketWriteMax)
	}
	if cfg.RegistrationFee != 2500 {
		t.Fatalf("unexpected registration fee %d", cfg.RegistrationFee)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	vars := testVars()
	vars["DATABASE_URL"] = ""
	if _, err := LoadForTests(vars); err == nil {
		t.Fatal("expected missing DATABASE_URL to fail")
	}
}
