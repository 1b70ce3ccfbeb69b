package introduction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/agent-dispatch/pkg/connections"
	"github.com/morezero/agent-dispatch/pkg/dispatcher"
	"github.com/morezero/agent-dispatch/pkg/msgtype"
)

const logPrefix = "introduction:handler"

// InvitationReceiver is the part of the connection manager the handler needs.
type InvitationReceiver interface {
	ReceiveInvitation(ctx context.Context, invitation *connections.ConnectionInvitation) (*connections.ConnectionRecord, error)
	CreateRequest(ctx context.Context, record *connections.ConnectionRecord) (*connections.ConnectionRequest, error)
}

// ForwardInvitationHandler accepts a forwarded invitation and, when Settings.AcceptInvites is
// set, answers it with a connection request addressed to the new connection.
type ForwardInvitationHandler struct {
	Connections InvitationReceiver
}

// Handle implements dispatcher.Handler. Connection manager errors are returned unchanged.
func (h *ForwardInvitationHandler) Handle(ctx context.Context, rc *dispatcher.RequestContext, r dispatcher.Responder) error {
	if err := dispatcher.RequireConnection(rc); err != nil {
		return err
	}
	msg, ok := rc.Message.(*ForwardInvitation)
	if !ok {
		return dispatcher.UnexpectedMessage(ForwardInvitationType, rc.Message)
	}
	if msg.Invitation == nil {
		return dispatcher.MissingField("invitation")
	}

	record, err := h.Connections.ReceiveInvitation(ctx, msg.Invitation)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Forwarded invitation from %q received as connection=%s via=%s",
		logPrefix, msg.Invitation.Label, record.ConnectionID, rc.ConnectionID()))

	if !rc.Settings.AcceptInvites {
		return nil
	}

	request, err := h.Connections.CreateRequest(ctx, record)
	if err != nil {
		return err
	}
	return r.Send(ctx, request, &dispatcher.Target{ConnectionID: record.ConnectionID})
}

// Register binds the handler to both URI families of forward-invitation.
func Register(d *dispatcher.Dispatcher, receiver InvitationReceiver) error {
	if receiver == nil {
		return fmt.Errorf("%s - connection manager is required", logPrefix)
	}
	return d.Register(&ForwardInvitationHandler{Connections: receiver},
		msgtype.Aliases(protocolName, protocolVersion, nameForwardInvitation)...)
}
