package transport

import (
	"context"
	"testing"
	"time"

	"github.com/coordcore/core/internal/common/logger"
)

func TestFileLogSendReceiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewFileLogTransport(dir, logger.Default())
	if err != nil {
		t.Fatalf("NewFileLogTransport: %v", err)
	}

	msg := New("orchestrator", "builder-1", IntentRequest, "build-1", map[string]any{"type": "execute_task"})
	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := tr.Receive(context.Background(), "builder-1", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got == nil || got.MessageID != msg.MessageID {
		t.Fatalf("expected to receive the sent message, got %+v", got)
	}
}

func TestFileLogReceiveIgnoresMessagesForOtherAgents(t *testing.T) {
	dir := t.TempDir()
	tr, _ := NewFileLogTransport(dir, logger.Default())

	tr.Send(context.Background(), New("orchestrator", "validator-1", IntentRequest, "v1", nil))

	got, err := tr.Receive(context.Background(), "builder-1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no message addressed to builder-1, got %+v", got)
	}
}

func TestFileLogReceiveDeliversBroadcast(t *testing.T) {
	dir := t.TempDir()
	tr, _ := NewFileLogTransport(dir, logger.Default())

	tr.Send(context.Background(), New("orchestrator", Broadcast, IntentInform, "", map[string]any{"type": "shutdown"}))

	got, err := tr.Receive(context.Background(), "builder-1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got == nil {
		t.Fatal("expected the broadcast message to be delivered")
	}
}

func TestFileLogCursorAdvancesAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	first, _ := NewFileLogTransport(dir, logger.Default())

	first.Send(context.Background(), New("orchestrator", "builder-1", IntentRequest, "build-1", nil))
	if _, err := first.Receive(context.Background(), "builder-1", 20*time.Millisecond); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	// A fresh transport instance over the same directory must pick up the
	// persisted cursor rather than redelivering what was already consumed.
	second, err := NewFileLogTransport(dir, logger.Default())
	if err != nil {
		t.Fatalf("NewFileLogTransport: %v", err)
	}
	got, err := second.Receive(context.Background(), "builder-1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got != nil {
		t.Fatalf("expected the already-consumed message not to be redelivered, got %+v", got)
	}
}
