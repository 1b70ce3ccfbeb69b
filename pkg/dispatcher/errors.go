package dispatcher

import (
	"errors"
	"fmt"

	"github.com/morezero/agent-dispatch/pkg/messaging"
)

// Handler error codes.
const (
	CodeNoActiveConnection = "NO_ACTIVE_CONNECTION"
	CodeMissingField       = "MISSING_FIELD"
	CodeUnexpectedMessage  = "UNEXPECTED_MESSAGE"
	CodeNoHandler          = "NO_HANDLER"
)

// HandlerError reports an unmet precondition. No reply is sent for the triggering message.
type HandlerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *HandlerError) Error() string {
	return e.Code + ": " + e.Message
}

// NewHandlerError creates a new HandlerError.
func NewHandlerError(code, message string) *HandlerError {
	return &HandlerError{Code: code, Message: message}
}

// AsHandlerError extracts a HandlerError from err.
func AsHandlerError(err error) (*HandlerError, bool) {
	var he *HandlerError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// RequireConnection fails unless the sender's connection is ready.
func RequireConnection(rc *RequestContext) error {
	if rc == nil || !rc.ConnectionReady {
		return NewHandlerError(CodeNoActiveConnection, "no active connection")
	}
	return nil
}

// MissingField reports a required message field that is absent.
func MissingField(field string) *HandlerError {
	return NewHandlerError(CodeMissingField, fmt.Sprintf("missing required field %q", field))
}

// UnexpectedMessage reports a handler invoked with a message of the wrong Go type.
func UnexpectedMessage(want string, got messaging.Message) *HandlerError {
	gotType := "<nil>"
	if got != nil {
		gotType = got.MessageType()
	}
	return NewHandlerError(CodeUnexpectedMessage, fmt.Sprintf("expected %s, got %s", want, gotType))
}

// NoHandler reports a message type without a registered handler.
func NoHandler(msgType string) *HandlerError {
	return NewHandlerError(CodeNoHandler, fmt.Sprintf("no handler for message type %s", msgType))
}
