package transport

import (
	"errors"
	"testing"
)

func TestNewFillsDefaults(t *testing.T) {
	msg := New("orchestrator", "builder-1", IntentRequest, "build-1", nil)

	if msg.MessageID == "" {
		t.Fatal("expected a generated message id")
	}
	if msg.Payload == nil {
		t.Fatal("expected New to normalize a nil payload to an empty map")
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("expected a non-zero timestamp")
	}
	if msg.RetryCount != 0 {
		t.Fatalf("expected retry count 0, got %d", msg.RetryCount)
	}
}

func TestIsBroadcast(t *testing.T) {
	direct := New("orchestrator", "builder-1", IntentRequest, "t1", nil)
	if direct.IsBroadcast() {
		t.Fatal("direct message should not be a broadcast")
	}

	broadcast := New("orchestrator", Broadcast, IntentInform, "t1", nil)
	if !broadcast.IsBroadcast() {
		t.Fatal("expected Broadcast recipient to report IsBroadcast")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	msg := New("architect-1", "orchestrator", IntentInform, "spec-1", map[string]any{
		"type": "specification_ready",
	})

	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.MessageID != msg.MessageID || got.TaskID != msg.TaskID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, msg)
	}
	if got.PayloadType() != "specification_ready" {
		t.Fatalf("expected payload type specification_ready, got %q", got.PayloadType())
	}
}

func TestMarshalUnmarshalRoundTripPreservesArrayFields(t *testing.T) {
	msg := New("external", "orchestrator", IntentRequest, "build-1", map[string]any{
		"type":         "submit_task",
		"dependencies": []string{"spec-1", "spec-2"},
	})

	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	// encoding/json decodes a JSON array into map[string]any as
	// []interface{}, never []string: a caller reading this field back
	// must account for that shape, not assume the pre-marshal type.
	deps, ok := got.Payload["dependencies"].([]any)
	if !ok {
		t.Fatalf("expected dependencies to decode as []any after a JSON round trip, got %T", got.Payload["dependencies"])
	}
	if len(deps) != 2 || deps[0] != "spec-1" || deps[1] != "spec-2" {
		t.Fatalf("expected dependencies to round trip, got %v", deps)
	}
}

func TestPayloadTypeEmptyWhenAbsent(t *testing.T) {
	msg := New("a", "b", IntentAck, "t1", nil)
	if got := msg.PayloadType(); got != "" {
		t.Fatalf("expected empty payload type, got %q", got)
	}
}

func TestAck(t *testing.T) {
	original := New("orchestrator", "builder-1", IntentRequest, "build-1", nil)
	ack := original.Ack("builder-1")

	if ack.Intent != IntentAck {
		t.Fatalf("expected ACK intent, got %s", ack.Intent)
	}
	if ack.RecipientID != original.SenderID {
		t.Fatalf("expected ack recipient to be the original sender, got %s", ack.RecipientID)
	}
	if ack.Payload["original_message_id"] != original.MessageID {
		t.Fatalf("expected ack to reference the original message id")
	}
}

func TestErrorReply(t *testing.T) {
	original := New("orchestrator", "builder-1", IntentRequest, "build-1", nil)
	reply := original.ErrorReply("builder-1", errors.New("boom"))

	if reply.Intent != IntentError {
		t.Fatalf("expected ERROR intent, got %s", reply.Intent)
	}
	if reply.TaskID != original.TaskID {
		t.Fatalf("expected error reply to carry the same task id")
	}
	if reply.Payload["error"] != "boom" {
		t.Fatalf("expected error payload to carry the cause, got %v", reply.Payload["error"])
	}
}
