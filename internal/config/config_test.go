package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", c.Server.Addr)
	}
	if c.MFA.LoginTTL != 5*time.Minute || c.MFA.ActionTTL != 10*time.Minute {
		t.Fatalf("mfa ttls = %v / %v", c.MFA.LoginTTL, c.MFA.ActionTTL)
	}
	if c.JWT.RefreshTTL != 720*time.Hour {
		t.Fatalf("refresh ttl = %v", c.JWT.RefreshTTL)
	}
	if c.Reset.OTPTTL != 5*time.Minute {
		t.Fatalf("otp ttl = %v", c.Reset.OTPTTL)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9999"
mfa:
  provider: duo
  login_ttl: 3m
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SERVER_ADDR", ":7777")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// env gana sobre yaml
	if c.Server.Addr != ":7777" {
		t.Fatalf("addr = %q", c.Server.Addr)
	}
	if c.MFA.Provider != "duo" || c.MFA.LoginTTL != 3*time.Minute {
		t.Fatalf("mfa = %+v", c.MFA)
	}
}

func TestValidateProdRequiresSigningKey(t *testing.T) {
	var c Config
	c.applyDefaults()
	c.App.Env = "prod"
	c.MFA.Provider = "duo"

	if err := c.Validate(); err == nil {
		t.Fatal("prod sin signing_key pasó la validación")
	}
}

func TestValidateRejectsStaticProviderInProd(t *testing.T) {
	var c Config
	c.applyDefaults()
	c.App.Env = "prod"
	c.JWT.SigningKey = "c2VlZHNlZWRzZWVkc2VlZHNlZWRzZWVkc2VlZHNlZWQ="

	if err := c.Validate(); err == nil {
		t.Fatal("provider static permitido en prod")
	}
}

func TestSigningSeed(t *testing.T) {
	var c Config
	if b, err := c.SigningSeed(); err != nil || b != nil {
		t.Fatalf("empty seed: %v %v", b, err)
	}
	c.JWT.SigningKey = "not!!base64"
	if _, err := c.SigningSeed(); err == nil {
		t.Fatal("base64 inválido aceptado")
	}
}
