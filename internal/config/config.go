// Package config provides agent configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/agent-dispatch/pkg/dispatcher"
)

const logPrefix = "config:LoadConfig"

// Route store backends.
const (
	RouteStoreMemory   = "memory"
	RouteStorePostgres = "postgres"
)

// Config holds agent-dispatch configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"agent-dispatch"`
	// QueueGroup lets several instances share the inbound subject. Empty disables queue subscription.
	QueueGroup string `envconfig:"AGENT_QUEUE_GROUP" default:"agent-dispatch"`

	// Subjects
	InboundSubject           string `envconfig:"AGENT_INBOUND_SUBJECT" default:"agent.inbound"`
	OutboundSubject          string `envconfig:"AGENT_OUTBOUND_SUBJECT" default:"agent.outbound"`
	ConnectionRemovedSubject string `envconfig:"AGENT_CONNECTION_REMOVED_SUBJECT" default:"agent.connection.removed"`
	RoutesChangedSubject     string `envconfig:"ROUTES_CHANGED_SUBJECT" default:"agent.routes.changed"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// Route storage
	RouteStore    string `envconfig:"ROUTE_STORE" default:"memory"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Handler settings
	AcceptInvites bool   `envconfig:"ACCEPT_INVITES" default:"false"`
	AgentLabel    string `envconfig:"AGENT_LABEL" default:"agent-dispatch"`

	// HTTP health endpoint (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the agent.
func (c *Config) ValidateForServe() error {
	switch c.RouteStore {
	case RouteStoreMemory:
	case RouteStorePostgres:
		if err := c.ValidateForDB(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s - ROUTE_STORE must be %q or %q, got %q", logPrefix, RouteStoreMemory, RouteStorePostgres, c.RouteStore)
	}
	if c.InboundSubject == "" || c.OutboundSubject == "" {
		return fmt.Errorf("%s - AGENT_INBOUND_SUBJECT and AGENT_OUTBOUND_SUBJECT are required", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("%s - DB_MAX_CONNS must be positive", logPrefix)
	}
	return nil
}

// Settings returns the handler settings carried by every request context.
func (c *Config) Settings() dispatcher.Settings {
	return dispatcher.Settings{
		AcceptInvites: c.AcceptInvites,
	}
}

// UsesDatabase reports whether serve needs a Postgres pool.
func (c *Config) UsesDatabase() bool {
	return c.RouteStore == RouteStorePostgres
}
