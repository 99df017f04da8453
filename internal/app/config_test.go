package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DeliveryURL != DefaultDeliveryURL {
		t.Fatalf("url = %q, want default", cfg.DeliveryURL)
	}
}

func TestLoadConfigFileAndOverride(t *testing.T) {
	home := t.TempDir()
	toml := []byte("delivery_url = \"http://delivery.internal:9000\"\n")
	if err := os.WriteFile(filepath.Join(home, "config.toml"), toml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(home, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DeliveryURL != "http://delivery.internal:9000" {
		t.Fatalf("url = %q, want file value", cfg.DeliveryURL)
	}

	cfg, err = LoadConfig(home, "http://localhost:1234")
	if err != nil {
		t.Fatalf("load with override: %v", err)
	}
	if cfg.DeliveryURL != "http://localhost:1234" {
		t.Fatalf("url = %q, want override", cfg.DeliveryURL)
	}
}

func TestLoadConfigBadTOML(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte("delivery_url = ["), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(home, ""); err == nil {
		t.Fatal("malformed config accepted")
	}
}
