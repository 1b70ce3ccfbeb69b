package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/agent-dispatch/pkg/connections"
	"github.com/morezero/agent-dispatch/pkg/messaging"
)

const (
	legacyEcho  = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/echo/1.0/ping"
	currentEcho = "https://didcomm.org/echo/1.0/ping"
	echoReply   = "https://didcomm.org/echo/1.0/pong"
)

type echoMessage struct {
	messaging.Header
	Text string `json:"text,omitempty"`
}

func testRegistry(t *testing.T) *messaging.Registry {
	t.Helper()
	reg := messaging.NewRegistry()
	newEcho := func() messaging.Message { return &echoMessage{} }
	if err := reg.RegisterAll(map[string]messaging.Factory{
		legacyEcho:  newEcho,
		currentEcho: newEcho,
		echoReply:   newEcho,
	}); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - RegisterAll failed: %v", err)
	}
	return reg
}

// echoHandler replies once with the inbound text and counts invocations.
type echoHandler struct {
	calls int
}

func (h *echoHandler) Handle(ctx context.Context, rc *RequestContext, r Responder) error {
	h.calls++
	if err := RequireConnection(rc); err != nil {
		return err
	}
	msg, ok := rc.Message.(*echoMessage)
	if !ok {
		return UnexpectedMessage(currentEcho, rc.Message)
	}
	reply := &echoMessage{Header: messaging.NewHeader(echoReply), Text: msg.Text}
	reply.ReplyTo(msg)
	return r.Send(ctx, reply, nil)
}

func readyState() ConnectionState {
	return ConnectionState{
		Connection: &connections.ConnectionRecord{ConnectionID: "conn-id", State: connections.StateActive},
		Ready:      true,
		Receipt:    &MessageReceipt{SenderVerkey: "3Dn1SJNPaCXcvvJvSbsFWP2xaCjMom3can8CQNhWrTRx"},
	}
}

func TestRegister_AliasesShareHandler(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))
	h := &echoHandler{}
	if err := disp.Register(h, legacyEcho, currentEcho); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Register failed: %v", err)
	}

	for _, uri := range []string{legacyEcho, currentEcho} {
		got, err := disp.HandlerFor(uri)
		if err != nil {
			t.Fatalf("dispatcher:dispatcher_test - HandlerFor(%s) failed: %v", uri, err)
		}
		if got != Handler(h) {
			t.Errorf("dispatcher:dispatcher_test - HandlerFor(%s) returned a different handler", uri)
		}
	}
}

func TestRegister_FailsFast(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))

	err := disp.Register(&echoHandler{}, currentEcho, "https://didcomm.org/echo/1.0/unknown")
	he, ok := AsHandlerError(err)
	if !ok || he.Code != CodeNoHandler {
		t.Fatalf("dispatcher:dispatcher_test - err = %v, want NO_HANDLER", err)
	}
	// Nothing registered when any URI fails.
	if _, err := disp.HandlerFor(currentEcho); err == nil {
		t.Error("dispatcher:dispatcher_test - partial registration leaked a handler")
	}

	if err := disp.Register(&echoHandler{}, currentEcho); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Register failed: %v", err)
	}
	if err := disp.Register(&echoHandler{}, currentEcho); err == nil {
		t.Error("dispatcher:dispatcher_test - expected duplicate handler registration to fail")
	}
	if err := disp.Register(nil, legacyEcho); err == nil {
		t.Error("dispatcher:dispatcher_test - expected nil handler to fail")
	}
	if err := disp.Register(&echoHandler{}); err == nil {
		t.Error("dispatcher:dispatcher_test - expected empty URI list to fail")
	}
}

func TestHandlerFor_MinorVersionFallback(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))
	h := &echoHandler{}
	if err := disp.Register(h, currentEcho); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Register failed: %v", err)
	}

	got, err := disp.HandlerFor("https://didcomm.org/echo/1.4/ping")
	if err != nil {
		t.Fatalf("dispatcher:dispatcher_test - HandlerFor failed: %v", err)
	}
	if got != Handler(h) {
		t.Error("dispatcher:dispatcher_test - minor version did not resolve to the 1.0 handler")
	}
}

func TestHandlerFor_NoHandler(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))

	for _, uri := range []string{echoReply, "https://didcomm.org/other/1.0/thing", "bogus"} {
		_, err := disp.HandlerFor(uri)
		he, ok := AsHandlerError(err)
		if !ok || he.Code != CodeNoHandler {
			t.Errorf("dispatcher:dispatcher_test - HandlerFor(%q) err = %v, want NO_HANDLER", uri, err)
		}
	}
}

func TestDispatchRaw_Handled(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))
	h := &echoHandler{}
	if err := disp.Register(h, legacyEcho, currentEcho); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Register failed: %v", err)
	}

	responder := NewRecordingResponder()
	raw := []byte(`{"@type":"` + legacyEcho + `","@id":"m-1","text":"hello"}`)
	if err := disp.DispatchRaw(context.Background(), raw, readyState(), Settings{}, responder); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - DispatchRaw failed: %v", err)
	}

	messages := responder.Messages()
	if len(messages) != 1 {
		t.Fatalf("dispatcher:dispatcher_test - expected 1 reply, got %d", len(messages))
	}
	reply, ok := messages[0].Message.(*echoMessage)
	if !ok {
		t.Fatalf("dispatcher:dispatcher_test - reply is %T", messages[0].Message)
	}
	if reply.Text != "hello" || reply.ThreadID() != "m-1" {
		t.Errorf("dispatcher:dispatcher_test - unexpected reply %+v", reply)
	}
	if messages[0].Target != nil {
		t.Errorf("dispatcher:dispatcher_test - expected reply on inbound channel, got target %+v", messages[0].Target)
	}
}

func TestDispatch_NotReadyRaisesAndSendsNothing(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))
	if err := disp.Register(&echoHandler{}, currentEcho); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Register failed: %v", err)
	}

	state := readyState()
	state.Ready = false
	responder := NewRecordingResponder()
	rc := NewRequestContext(&echoMessage{Header: messaging.NewHeader(currentEcho)}, state, Settings{})

	err := disp.Dispatch(context.Background(), rc, responder)
	he, ok := AsHandlerError(err)
	if !ok || he.Code != CodeNoActiveConnection {
		t.Fatalf("dispatcher:dispatcher_test - err = %v, want NO_ACTIVE_CONNECTION", err)
	}
	if responder.Len() != 0 {
		t.Errorf("dispatcher:dispatcher_test - expected no replies, got %d", responder.Len())
	}
}

func TestDispatch_CollaboratorErrorPassesThrough(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))
	storageDown := errors.New("storage unavailable")
	failing := HandlerFunc(func(context.Context, *RequestContext, Responder) error {
		return storageDown
	})
	if err := disp.Register(failing, currentEcho); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Register failed: %v", err)
	}

	rc := NewRequestContext(&echoMessage{Header: messaging.NewHeader(currentEcho)}, readyState(), Settings{})
	err := disp.Dispatch(context.Background(), rc, NewRecordingResponder())
	if err != storageDown {
		t.Errorf("dispatcher:dispatcher_test - err = %v, want the collaborator error unchanged", err)
	}
}

func TestDispatch_MissingMessage(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))

	for _, rc := range []*RequestContext{nil, {ConnectionReady: true}} {
		err := disp.Dispatch(context.Background(), rc, NewRecordingResponder())
		he, ok := AsHandlerError(err)
		if !ok || he.Code != CodeMissingField {
			t.Errorf("dispatcher:dispatcher_test - err = %v, want MISSING_FIELD", err)
		}
	}
}

func TestDispatchRaw_Errors(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))
	if err := disp.Register(&echoHandler{}, currentEcho); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Register failed: %v", err)
	}

	tests := []struct {
		name     string
		raw      string
		wantCode string
	}{
		{"unknown type", `{"@type":"https://didcomm.org/basicmessage/1.0/message"}`, CodeNoHandler},
		{"registered type without handler", `{"@type":"` + echoReply + `"}`, CodeNoHandler},
		{"invalid json", `{`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := disp.DispatchRaw(context.Background(), []byte(tt.raw), readyState(), Settings{}, NewRecordingResponder())
			if err == nil {
				t.Fatal("dispatcher:dispatcher_test - expected error")
			}
			he, ok := AsHandlerError(err)
			if tt.wantCode == "" {
				if ok {
					t.Errorf("dispatcher:dispatcher_test - decode failure should not be a HandlerError: %v", err)
				}
				return
			}
			if !ok || he.Code != tt.wantCode {
				t.Errorf("dispatcher:dispatcher_test - err = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestDispatchRaw_StampsReceipt(t *testing.T) {
	disp := NewDispatcher(testRegistry(t))
	var seen *RequestContext
	capture := HandlerFunc(func(_ context.Context, rc *RequestContext, _ Responder) error {
		seen = rc
		return nil
	})
	if err := disp.Register(capture, currentEcho); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - Register failed: %v", err)
	}

	settings := Settings{AcceptInvites: true}
	raw := []byte(`{"@type":"` + currentEcho + `"}`)
	if err := disp.DispatchRaw(context.Background(), raw, readyState(), settings, NewRecordingResponder()); err != nil {
		t.Fatalf("dispatcher:dispatcher_test - DispatchRaw failed: %v", err)
	}
	if seen == nil {
		t.Fatal("dispatcher:dispatcher_test - handler not invoked")
	}
	if seen.Receipt == nil || seen.Receipt.ReceivedAt.IsZero() {
		t.Error("dispatcher:dispatcher_test - expected receipt timestamp")
	}
	if !seen.Settings.AcceptInvites {
		t.Errorf("dispatcher:dispatcher_test - settings not carried: %+v", seen.Settings)
	}
	if seen.ConnectionID() != "conn-id" {
		t.Errorf("dispatcher:dispatcher_test - ConnectionID = %q", seen.ConnectionID())
	}
}
