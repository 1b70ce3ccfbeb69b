package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const logPrefix = "connections:manager"

// ErrConnectionNotFound is returned when a connection id is unknown to the manager.
var ErrConnectionNotFound = errors.New("connection not found")

// Manager is the connection manager boundary consumed by protocol handlers.
type Manager interface {
	// ReceiveInvitation stores an invitation and returns the new or existing connection for it.
	ReceiveInvitation(ctx context.Context, invitation *ConnectionInvitation) (*ConnectionRecord, error)
	// CreateRequest builds the connection request answering the invitation behind record.
	CreateRequest(ctx context.Context, record *ConnectionRecord) (*ConnectionRequest, error)
	// UpdateInbound records the mediator-confirmed routing state of one of our recipient keys.
	UpdateInbound(ctx context.Context, connectionID, recipientKey string, state InboundRoutingState) error
}

// MemoryManager keeps connection bookkeeping in memory. It does not perform DID exchange
// cryptography; NewDID may be set to attach a DID to outgoing requests.
type MemoryManager struct {
	label  string
	newDID func(ctx context.Context) (string, error)

	mu           sync.RWMutex
	records      map[string]*ConnectionRecord
	byInvitation map[string]string
	inbound      map[string]map[string]InboundRoutingState
}

// MemoryManagerParams holds parameters for NewMemoryManager.
type MemoryManagerParams struct {
	// Label is sent in connection requests.
	Label string
	// NewDID optionally provides the DID placed in connection requests.
	NewDID func(ctx context.Context) (string, error)
}

// NewMemoryManager creates an empty MemoryManager.
func NewMemoryManager(params MemoryManagerParams) *MemoryManager {
	return &MemoryManager{
		label:        params.Label,
		newDID:       params.NewDID,
		records:      make(map[string]*ConnectionRecord),
		byInvitation: make(map[string]string),
		inbound:      make(map[string]map[string]InboundRoutingState),
	}
}

// ReceiveInvitation implements Manager. Invitations are keyed by their first recipient key, or
// their DID for public invitations; a repeated invitation returns the existing record.
func (m *MemoryManager) ReceiveInvitation(_ context.Context, invitation *ConnectionInvitation) (*ConnectionRecord, error) {
	if invitation == nil {
		return nil, fmt.Errorf("%s - invitation is required", logPrefix)
	}
	key := invitation.DID
	if len(invitation.RecipientKeys) > 0 {
		key = invitation.RecipientKeys[0]
	}
	if key == "" {
		return nil, fmt.Errorf("%s - invitation must carry a DID or recipient keys", logPrefix)
	}
	if invitation.DID == "" && invitation.Endpoint == "" {
		return nil, fmt.Errorf("%s - invitation without DID must carry a service endpoint", logPrefix)
	}
	if err := validateInvitationKeys(invitation); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byInvitation[key]; ok {
		existing := *m.records[id]
		slog.Debug(fmt.Sprintf("%s - Invitation %s already received as %s", logPrefix, key, id))
		return &existing, nil
	}

	now := time.Now().UTC()
	rec := &ConnectionRecord{
		ConnectionID:  uuid.NewString(),
		State:         StateInvitation,
		TheirLabel:    invitation.Label,
		TheirDID:      invitation.DID,
		InvitationKey: key,
		Endpoint:      invitation.Endpoint,
		RoutingKeys:   append([]string(nil), invitation.RoutingKeys...),
		Created:       now,
		Updated:       now,
	}
	m.records[rec.ConnectionID] = rec
	m.byInvitation[key] = rec.ConnectionID

	slog.Info(fmt.Sprintf("%s - Received invitation label=%q connection=%s", logPrefix, invitation.Label, rec.ConnectionID))
	out := *rec
	return &out, nil
}

// CreateRequest implements Manager.
func (m *MemoryManager) CreateRequest(ctx context.Context, record *ConnectionRecord) (*ConnectionRequest, error) {
	if record == nil {
		return nil, fmt.Errorf("%s - connection record is required", logPrefix)
	}

	var did string
	if m.newDID != nil {
		var err error
		did, err = m.newDID(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to create DID: %w", logPrefix, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[record.ConnectionID]
	if !ok {
		return nil, fmt.Errorf("%s - %w: %s", logPrefix, ErrConnectionNotFound, record.ConnectionID)
	}
	if rec.State != StateInvitation && rec.State != StateRequest {
		return nil, fmt.Errorf("%s - connection %s in state %s cannot send a request", logPrefix, rec.ConnectionID, rec.State)
	}

	req := NewConnectionRequest(m.label)
	if did != "" {
		req.Connection = &ConnectionDetail{DID: did}
		rec.MyDID = did
	}
	rec.State = StateRequest
	rec.Updated = time.Now().UTC()

	slog.Info(fmt.Sprintf("%s - Created request for connection=%s", logPrefix, rec.ConnectionID))
	return req, nil
}

// UpdateInbound implements Manager.
func (m *MemoryManager) UpdateInbound(_ context.Context, connectionID, recipientKey string, state InboundRoutingState) error {
	if recipientKey == "" {
		return fmt.Errorf("%s - recipient key is required", logPrefix)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.inbound[connectionID]
	if !ok {
		keys = make(map[string]InboundRoutingState)
		m.inbound[connectionID] = keys
	}
	keys[recipientKey] = state

	slog.Debug(fmt.Sprintf("%s - Inbound routing connection=%s key=%s state=%s", logPrefix, connectionID, recipientKey, state))
	return nil
}

// InboundState returns the recorded inbound routing state for a key, or InboundRoutingNone.
func (m *MemoryManager) InboundState(connectionID, recipientKey string) InboundRoutingState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.inbound[connectionID][recipientKey]; ok {
		return state
	}
	return InboundRoutingNone
}

// Connection returns a copy of a stored record.
func (m *MemoryManager) Connection(connectionID string) (*ConnectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[connectionID]
	if !ok {
		return nil, fmt.Errorf("%s - %w: %s", logPrefix, ErrConnectionNotFound, connectionID)
	}
	out := *rec
	return &out, nil
}

// RemoveConnection forgets a connection and its inbound routing state.
func (m *MemoryManager) RemoveConnection(connectionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[connectionID]
	if ok {
		delete(m.byInvitation, rec.InvitationKey)
		delete(m.records, connectionID)
	}
	delete(m.inbound, connectionID)
	return ok
}
