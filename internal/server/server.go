// Package server orchestrates all components: NATS client, route store, dispatcher, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/agent-dispatch/internal/config"
	"github.com/morezero/agent-dispatch/pkg/commsutil"
	"github.com/morezero/agent-dispatch/pkg/db"
	"github.com/morezero/agent-dispatch/pkg/events"
	"github.com/morezero/agent-dispatch/pkg/routing"
	"github.com/morezero/agent-dispatch/pkg/transport"
)

const logPrefix = "server:server"

// Server is the agent-dispatch orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	agent      *Agent
}

// Run starts the agent, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting agent-dispatch", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName, commsutil.ConnectOptions{})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 2: Route store
	var store routing.Store
	if cfg.UsesDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool

		if cfg.RunMigrations {
			if err := migrate(ctx, pool, cfg.MigrationPath); err != nil {
				pool.Close()
				nc.Close()
				return err
			}
		}
		store = db.NewRouteRepository(pool)
	} else {
		store = routing.NewMemoryStore()
		slog.Warn(fmt.Sprintf("%s - Using in-memory route store; routes are lost on restart", logPrefix))
	}

	// Step 3: Wire the dispatcher and handlers
	agent, err := NewAgent(AgentParams{
		Store:     store,
		Publisher: events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: cfg.RoutesChangedSubject}),
		Label:     cfg.AgentLabel,
	})
	if err != nil {
		s.close()
		return err
	}
	s.agent = agent

	// Step 4: Subscribe
	inbound := transport.NewInbound(transport.InboundParams{
		Dispatcher: agent.Dispatcher,
		Forwarder:  transport.NewSender(nc, cfg.OutboundSubject),
		Settings:   cfg.Settings(),
		Lookup:     agent.Connections.Connection,
		Timeout:    cfg.RequestTimeout,
	})
	sub, err := inbound.Subscribe(ctx, nc, cfg.InboundSubject, cfg.QueueGroup)
	if err != nil {
		s.close()
		return err
	}

	removedSub, err := transport.SubscribeConnectionRemoved(ctx, nc, cfg.ConnectionRemovedSubject, agent.Routes, func(id string) {
		agent.Connections.RemoveConnection(id)
	})
	if err != nil {
		s.close()
		return err
	}

	// Step 5: Start HTTP health server
	checks := []HealthCheck{{Name: "comms", Check: natsCheck(nc)}}
	if s.pool != nil {
		checks = append(checks, HealthCheck{Name: "database", Check: s.pool.Ping})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(checks, cfg.HealthCheckTimeout))
	mux.HandleFunc("/ready", readyHandler())

	httpAddr := cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}

	slog.Info(fmt.Sprintf("%s - Agent is ready, %d message types registered", logPrefix, len(agent.Dispatcher.Registry().Types())))

	// Step 6: Serve until a signal arrives or the HTTP server fails
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		}
		return nil
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
		case <-gctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	// Graceful shutdown
	sub.Unsubscribe()
	removedSub.Unsubscribe()
	s.close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

func (s *Server) close() {
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func migrate(ctx context.Context, pool *pgxpool.Pool, path string) error {
	migrations, err := db.LoadMigrationFiles(path)
	if err != nil {
		return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
	}
	return nil
}

func natsCheck(nc *comms.Conn) func(context.Context) error {
	return func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("status %s", nc.Status())
		}
		return nil
	}
}

func readyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}
