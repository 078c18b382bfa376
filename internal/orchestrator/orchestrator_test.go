package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coordcore/core/internal/agent/registry"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/task"
	"github.com/coordcore/core/internal/task/store"
	"github.com/coordcore/core/internal/transport"
)

// memTransport is a minimal in-memory Transport fake: Send appends to a
// single slice of sent messages, Receive always returns nil (tests drive the
// Orchestrator directly via HandleMessage, not through a receive loop).
type memTransport struct {
	sent []*transport.Message
}

func (m *memTransport) Send(ctx context.Context, msg *transport.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func (m *memTransport) Receive(ctx context.Context, agentID string, timeout time.Duration) (*transport.Message, error) {
	return nil, nil
}

func (m *memTransport) Close() error { return nil }

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memTransport, *registry.Registry) {
	t.Helper()
	s := store.NewMemoryStore()
	tasks := task.NewRegistry(s, logger.Default())
	agents := registry.New()
	tr := &memTransport{}
	return New(tasks, agents, tr, logger.Default(), 0), tr, agents
}

func submit(t *testing.T, o *Orchestrator, taskType, priority string) *transport.Message {
	t.Helper()
	req := transport.New("client", SelfID, transport.IntentRequest, "", map[string]any{
		"type":      "submit_task",
		"task_type": taskType,
		"priority":  priority,
	})
	reply, err := o.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply)
	return reply
}

func TestSubmitTaskQueuesWhenNoAgent(t *testing.T) {
	o, tr, _ := newTestOrchestrator(t)
	reply := submit(t, o, "SPECIFICATION", "high")
	assert.Equal(t, "task_submitted", reply.PayloadType())
	assert.Empty(t, tr.sent, "no agent available, nothing should be dispatched yet")
}

func TestSubmitTaskDispatchesToAvailableAgent(t *testing.T) {
	o, tr, agents := newTestOrchestrator(t)
	agents.Register("architect-1", "ARCHITECT", []string{"ARCHITECT"})

	reply := submit(t, o, "SPECIFICATION", "medium")
	taskID, _ := reply.Payload["task_id"].(string)
	require.NotEmpty(t, taskID)

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "architect-1", tr.sent[0].RecipientID)
	assert.Equal(t, "execute_task", tr.sent[0].PayloadType())
}

func TestPipelineAdvancesOnSpecificationReady(t *testing.T) {
	o, tr, agents := newTestOrchestrator(t)
	agents.Register("architect-1", "ARCHITECT", nil)
	agents.Register("builder-1", "BUILDER", nil)

	reply := submit(t, o, "SPECIFICATION", "medium")
	specTaskID, _ := reply.Payload["task_id"].(string)
	require.Len(t, tr.sent, 1)

	inform := transport.New("architect-1", SelfID, transport.IntentInform, specTaskID, map[string]any{
		"type":         "specification_ready",
		"artifact_uri": "/shared/specifications/" + specTaskID + ".txt",
	})
	_, err := o.HandleMessage(context.Background(), inform)
	require.NoError(t, err)

	// A BUILD task should now have been dispatched to builder-1.
	require.Len(t, tr.sent, 2)
	buildMsg := tr.sent[1]
	assert.Equal(t, "builder-1", buildMsg.RecipientID)
	assert.Equal(t, "BUILD", buildMsg.Payload["task_type"])

	upstream, err := o.tasks.Get(context.Background(), specTaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, upstream.State)
}

// TestSubmitTaskPreservesDependenciesThroughJSONRoundTrip guards against a
// regression where a dependencies/capabilities list type-asserted as
// []string would silently come back empty once the message had actually
// gone through Marshal/Unmarshal, since every real Transport decodes a
// JSON array into map[string]any as []interface{}.
func TestSubmitTaskPreservesDependenciesThroughJSONRoundTrip(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	req := transport.New("client", SelfID, transport.IntentRequest, "", map[string]any{
		"type":         "submit_task",
		"task_type":    "BUILD",
		"priority":     "medium",
		"dependencies": []string{"spec-1", "spec-2"},
	})
	data, err := req.Marshal()
	require.NoError(t, err)
	roundTripped, err := transport.Unmarshal(data)
	require.NoError(t, err)

	reply, err := o.HandleMessage(context.Background(), roundTripped)
	require.NoError(t, err)
	taskID, _ := reply.Payload["task_id"].(string)
	require.NotEmpty(t, taskID)

	created, err := o.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, []string{"spec-1", "spec-2"}, created.Dependencies)
}

// TestAgentOnlineThroughJSONRoundTripPreservesCapabilities is the same
// regression guard for agent_online's capabilities field.
func TestAgentOnlineThroughJSONRoundTripPreservesCapabilities(t *testing.T) {
	o, _, agents := newTestOrchestrator(t)

	online := transport.New("architect-1", SelfID, transport.IntentInform, "", map[string]any{
		"type":         "agent_online",
		"role":         "ARCHITECT",
		"capabilities": []string{"ARCHITECT", "REVIEW"},
	})
	data, err := online.Marshal()
	require.NoError(t, err)
	roundTripped, err := transport.Unmarshal(data)
	require.NoError(t, err)

	_, err = o.HandleMessage(context.Background(), roundTripped)
	require.NoError(t, err)

	d := agents.Get("architect-1")
	require.NotNil(t, d)
	assert.Equal(t, []string{"ARCHITECT", "REVIEW"}, d.Capabilities)
}

func TestPingBypassesTaskRegistry(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ping := transport.New("someone", SelfID, transport.IntentRequest, "ping", map[string]any{"type": "ping"})
	reply, err := o.HandleMessage(context.Background(), ping)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "pong", reply.PayloadType())
}

func TestAgentOnlineTriggersQueuedDispatch(t *testing.T) {
	o, tr, agents := newTestOrchestrator(t)

	submit(t, o, "SPECIFICATION", "medium")
	assert.Empty(t, tr.sent)

	online := transport.New("architect-1", SelfID, transport.IntentInform, "", map[string]any{
		"type":         "agent_online",
		"role":         "ARCHITECT",
		"capabilities": []string{"ARCHITECT"},
	})
	_, err := o.HandleMessage(context.Background(), online)
	require.NoError(t, err)

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "architect-1", tr.sent[0].RecipientID)
	assert.NotNil(t, agents.Get("architect-1"))
}

func TestHandleRequestRejectsUnknownPayloadType(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	req := transport.New("client", SelfID, transport.IntentRequest, "", map[string]any{"type": "nonsense"})
	_, err := o.HandleMessage(context.Background(), req)
	assert.Error(t, err)
}
