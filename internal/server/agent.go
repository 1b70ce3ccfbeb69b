package server

import (
	"fmt"

	"github.com/morezero/agent-dispatch/pkg/connections"
	"github.com/morezero/agent-dispatch/pkg/dispatcher"
	"github.com/morezero/agent-dispatch/pkg/events"
	"github.com/morezero/agent-dispatch/pkg/introduction"
	"github.com/morezero/agent-dispatch/pkg/messaging"
	"github.com/morezero/agent-dispatch/pkg/presentproof"
	"github.com/morezero/agent-dispatch/pkg/routing"
)

// Agent bundles the dispatcher with the managers its handlers use.
type Agent struct {
	Dispatcher  *dispatcher.Dispatcher
	Routes      *routing.Manager
	Connections *connections.MemoryManager
}

// AgentParams holds parameters for NewAgent.
type AgentParams struct {
	Store     routing.Store
	Publisher events.EventPublisher
	Label     string
}

// NewAgent registers every known message family and the handlers for routing and introduction.
func NewAgent(params AgentParams) (*Agent, error) {
	reg := messaging.NewRegistry()
	for name, types := range map[string]map[string]messaging.Factory{
		"routing":      routing.MessageTypes(),
		"introduction": introduction.MessageTypes(),
		"connections":  connections.MessageTypes(),
		"presentproof": presentproof.MessageTypes(),
	} {
		if err := reg.RegisterAll(types); err != nil {
			return nil, fmt.Errorf("%s - failed to register %s message types: %w", logPrefix, name, err)
		}
	}

	a := &Agent{
		Dispatcher:  dispatcher.NewDispatcher(reg),
		Routes:      routing.NewManager(routing.ManagerParams{Store: params.Store, Publisher: params.Publisher}),
		Connections: connections.NewMemoryManager(connections.MemoryManagerParams{Label: params.Label}),
	}
	if err := routing.Register(a.Dispatcher, routing.HandlerDeps{Routes: a.Routes, Connections: a.Connections}); err != nil {
		return nil, fmt.Errorf("%s - failed to register routing handlers: %w", logPrefix, err)
	}
	if err := introduction.Register(a.Dispatcher, a.Connections); err != nil {
		return nil, fmt.Errorf("%s - failed to register introduction handlers: %w", logPrefix, err)
	}
	return a, nil
}
