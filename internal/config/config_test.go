package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_model: phi3:mini\nretrieval_top_k: 3\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RETAILMIND_SERVER_PORT", "9100")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DefaultModel != "phi3:mini" || c.RetrievalTopK != 3 {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.ServerPort != 9100 {
		t.Fatalf("env override not applied: port=%d", c.ServerPort)
	}
	if c.ChunkTokens != 500 || c.EmbedIntervalMs != 50 || c.MinConfidence != 0.3 {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestSetAndSaveRoundTrip(t *testing.T) {
	c := &Global{}
	if err := c.Set("server_port", "8080"); err != nil {
		t.Fatalf("Set int: %v", err)
	}
	if err := c.Set("temperature", "0.5"); err != nil {
		t.Fatalf("Set float: %v", err)
	}
	if err := c.Set("API_KEY", "sk-1234567890"); err != nil {
		t.Fatalf("Set string: %v", err)
	}
	if err := c.Set("server_port", "abc"); err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
	if err := c.Set("nope", "1"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if c.ServerPort != 8080 || c.Temperature != 0.5 || c.APIKey != "sk-1234567890" {
		t.Fatalf("unexpected values: %+v", c)
	}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ServerPort != 8080 || got.APIKey != "sk-1234567890" {
		t.Fatalf("round trip lost values: %+v", got)
	}
	if m := got.Masked().APIKey; m != "sk-1...7890" {
		t.Fatalf("masked key = %q", m)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RETAILMIND_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("RETAILMIND_API_KEY", "")
	os.Unsetenv("RETAILMIND_API_KEY")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("RETAILMIND_API_KEY"); got != "from-dotenv" {
		t.Fatalf("RETAILMIND_API_KEY = %q", got)
	}
}

func TestKeysMatchDefaults(t *testing.T) {
	if len(Keys()) != len(defaults) {
		t.Fatalf("Keys() has %d entries, defaults %d", len(Keys()), len(defaults))
	}
	for _, k := range Keys() {
		if !IsKey(k) {
			t.Fatalf("key %q has no default", k)
		}
	}
}
