package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DATABASE_URL", "SQLITE_PATH", "REDIS_ADDR", "AUTH_SECRET",
		"SESSION_TTL_MINUTES", "SECURE_COOKIES", "SHOP_NAME", "RESTOCK_ON_BILL_DELETE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.SQLitePath != "database.db" {
		t.Errorf("SQLitePath = %q, want database.db", cfg.SQLitePath)
	}
	if cfg.SessionTTLMinutes != 480 {
		t.Errorf("SessionTTLMinutes = %d, want 480", cfg.SessionTTLMinutes)
	}
	if cfg.ShopName != "Sita Ram Traders" {
		t.Errorf("ShopName = %q", cfg.ShopName)
	}
	if cfg.RestockOnBillDelete || cfg.SecureCookies {
		t.Error("boolean flags should default to false")
	}
	if cfg.Address() != ":8080" {
		t.Errorf("Address = %q, want :8080", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("SESSION_TTL_MINUTES", "60")
	t.Setenv("RESTOCK_ON_BILL_DELETE", "true")
	t.Setenv("SHOP_NAME", "Demo Traders")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	if cfg.Port != "9001" {
		t.Errorf("Port = %q, want 9001", cfg.Port)
	}
	if cfg.SessionTTLMinutes != 60 {
		t.Errorf("SessionTTLMinutes = %d, want 60", cfg.SessionTTLMinutes)
	}
	if !cfg.RestockOnBillDelete {
		t.Error("RestockOnBillDelete not parsed")
	}
	if cfg.ShopName != "Demo Traders" {
		t.Errorf("ShopName = %q", cfg.ShopName)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SESSION_TTL_MINUTES", "not-a-number")
	t.Setenv("RESTOCK_ON_BILL_DELETE", "maybe")

	cfg := Load()
	if cfg.SessionTTLMinutes != 480 {
		t.Errorf("SessionTTLMinutes = %d, want fallback 480", cfg.SessionTTLMinutes)
	}
	if cfg.RestockOnBillDelete {
		t.Error("invalid bool should fall back to false")
	}
}
