package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:       AppConfig{Env: "local", Port: 8080},
		Push:      PushConfig{Secret: "push-secret"},
		Signaling: SignalingConfig{URL: "wss://edge.example.com/signal"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_MinimalLocalConfig(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Push.HoldingTimeout != 5*time.Second {
		t.Fatalf("expected default holding timeout, got %v", c.Push.HoldingTimeout)
	}
	if c.Provider.MaxConcurrentCalls != 2 {
		t.Fatalf("expected default call cap, got %d", c.Provider.MaxConcurrentCalls)
	}
	if c.HasDB() || c.HasRedis() {
		t.Fatalf("db and redis must be optional locally")
	}
}

func TestValidate_ProductionRequiresBackingServices(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production without db and redis")
	}
	for _, want := range []string{"DB_HOST", "REDIS_HOST", "SIGNALING_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voicelink", SSLMode: ""}
	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	c.Signaling.AccessToken = "tok"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validLocal()
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voicelink", SSLMode: ""}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_RejectsNonWebsocketSignalingURL(t *testing.T) {
	c := validLocal()
	c.Signaling.URL = "https://edge.example.com/signal"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for non-websocket signaling url")
	}
}
