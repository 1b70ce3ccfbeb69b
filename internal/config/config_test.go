package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"COMMS_URL", "SERVICE_NAME", "AGENT_QUEUE_GROUP",
	"AGENT_INBOUND_SUBJECT", "AGENT_OUTBOUND_SUBJECT", "AGENT_CONNECTION_REMOVED_SUBJECT", "ROUTES_CHANGED_SUBJECT",
	"REQUEST_TIMEOUT", "ROUTE_STORE", "DATABASE_URL", "DB_MAX_CONNS", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"ACCEPT_INVITES", "AGENT_LABEL",
	"HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envVars {
		if val, ok := os.LookupEnv(env); ok {
			os.Unsetenv(env)
			t.Cleanup(func() { os.Setenv(env, val) })
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	strs := []struct{ name, got, want string }{
		{"COMMSURL", cfg.COMMSURL, "nats://127.0.0.1:4222"},
		{"COMMSName", cfg.COMMSName, "agent-dispatch"},
		{"QueueGroup", cfg.QueueGroup, "agent-dispatch"},
		{"InboundSubject", cfg.InboundSubject, "agent.inbound"},
		{"OutboundSubject", cfg.OutboundSubject, "agent.outbound"},
		{"ConnectionRemovedSubject", cfg.ConnectionRemovedSubject, "agent.connection.removed"},
		{"RoutesChangedSubject", cfg.RoutesChangedSubject, "agent.routes.changed"},
		{"RouteStore", cfg.RouteStore, RouteStoreMemory},
		{"DatabaseURL", cfg.DatabaseURL, ""},
		{"MigrationPath", cfg.MigrationPath, "migrations"},
		{"AgentLabel", cfg.AgentLabel, "agent-dispatch"},
		{"LogLevel", cfg.LogLevel, "info"},
	}
	for _, s := range strs {
		if s.got != s.want {
			t.Errorf("config:config_test - %s = %q, want %q", s.name, s.got, s.want)
		}
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 25s", cfg.RequestTimeout)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("config:config_test - DBMaxConns = %d, want 10", cfg.DBMaxConns)
	}
	if cfg.RunMigrations || cfg.AcceptInvites {
		t.Error("config:config_test - expected boolean flags to default to false")
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.UsesDatabase() {
		t.Error("config:config_test - memory store should not use the database")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate for serve: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COMMS_URL":             "nats://custom:4222",
		"SERVICE_NAME":          "mediator",
		"AGENT_INBOUND_SUBJECT": "custom.inbound",
		"REQUEST_TIMEOUT":       "10s",
		"ROUTE_STORE":           "postgres",
		"DATABASE_URL":          "postgres://test@localhost/test",
		"RUN_MIGRATIONS":        "true",
		"ACCEPT_INVITES":        "true",
		"AGENT_LABEL":           "Mediator",
		"HTTP_PORT":             "9090",
		"LOG_LEVEL":             "debug",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" || cfg.COMMSName != "mediator" {
		t.Errorf("config:config_test - COMMS = %q/%q", cfg.COMMSURL, cfg.COMMSName)
	}
	if cfg.InboundSubject != "custom.inbound" {
		t.Errorf("config:config_test - InboundSubject = %q, want %q", cfg.InboundSubject, "custom.inbound")
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if !cfg.UsesDatabase() || cfg.DatabaseURL != "postgres://test@localhost/test" {
		t.Errorf("config:config_test - store = %q url = %q", cfg.RouteStore, cfg.DatabaseURL)
	}
	if !cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=true")
	}
	if cfg.HTTPPort != 9090 || cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - HTTPPort = %d LogLevel = %q", cfg.HTTPPort, cfg.LogLevel)
	}

	settings := cfg.Settings()
	if !settings.AcceptInvites {
		t.Errorf("config:config_test - Settings() = %+v", settings)
	}
	if cfg.AgentLabel != "Mediator" {
		t.Errorf("config:config_test - AgentLabel = %q, want Mediator", cfg.AgentLabel)
	}
}

func TestValidateForServe(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RouteStore:         RouteStoreMemory,
			InboundSubject:     "agent.inbound",
			OutboundSubject:    "agent.outbound",
			RequestTimeout:     time.Second,
			HealthCheckTimeout: time.Second,
			DBMaxConns:         4,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "memory ok", mutate: func(c *Config) {}},
		{name: "postgres ok", mutate: func(c *Config) {
			c.RouteStore = RouteStorePostgres
			c.DatabaseURL = "postgres://x"
		}},
		{name: "postgres without url", mutate: func(c *Config) { c.RouteStore = RouteStorePostgres }, wantErr: "DATABASE_URL"},
		{name: "unknown store", mutate: func(c *Config) { c.RouteStore = "redis" }, wantErr: "ROUTE_STORE"},
		{name: "no inbound subject", mutate: func(c *Config) { c.InboundSubject = "" }, wantErr: "AGENT_INBOUND_SUBJECT"},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: "REQUEST_TIMEOUT"},
		{name: "zero health timeout", mutate: func(c *Config) { c.HealthCheckTimeout = 0 }, wantErr: "HEALTH_CHECK_TIMEOUT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.ValidateForServe()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("config:config_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("config:config_test - err = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestValidateForDB(t *testing.T) {
	if err := (&Config{DBMaxConns: 1}).ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error without DATABASE_URL")
	}
	if err := (&Config{DatabaseURL: "postgres://x", DBMaxConns: 0}).ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error for DB_MAX_CONNS=0")
	}
	if err := (&Config{DatabaseURL: "postgres://x", DBMaxConns: 1}).ValidateForDB(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
}

func TestLoadConfig_LogLevels(t *testing.T) {
	clearEnv(t)
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Setenv("LOG_LEVEL", level)
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("config:config_test - unexpected error for level %q: %v", level, err)
		}
		if cfg.LogLevel != level {
			t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, level)
		}
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUEST_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Error("config:config_test - expected error for invalid REQUEST_TIMEOUT")
	}
}
