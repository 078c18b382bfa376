package roles

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/transport"
)

type captureTransport struct {
	sent []*transport.Message
}

func (c *captureTransport) Send(ctx context.Context, msg *transport.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureTransport) Receive(ctx context.Context, agentID string, timeout time.Duration) (*transport.Message, error) {
	return nil, nil
}

func (c *captureTransport) Close() error { return nil }

func TestInitializeAnnouncesOnline(t *testing.T) {
	tr := &captureTransport{}
	w := NewWorker(KindArchitect, "architect-1", t.TempDir(), tr, logger.Default())

	require.NoError(t, w.Initialize(context.Background()))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "agent_online", tr.sent[0].PayloadType())
	assert.Equal(t, "orchestrator", tr.sent[0].RecipientID)
}

func TestHandleRequestWritesArtifactAndInforms(t *testing.T) {
	dir := t.TempDir()
	tr := &captureTransport{}
	w := NewWorker(KindBuilder, "builder-1", dir, tr, logger.Default())

	msg := transport.New("orchestrator", "builder-1", transport.IntentRequest, "build-1", map[string]any{
		"type": "execute_task",
	})
	require.NoError(t, w.HandleRequest(context.Background(), msg))

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "build_complete", tr.sent[0].PayloadType())
	artifactURI, _ := tr.sent[0].Payload["artifact_uri"].(string)
	require.NotEmpty(t, artifactURI)

	data, err := os.ReadFile(filepath.Join(dir, "builds", "build-1.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "task_id=build-1")
	assert.Contains(t, string(data), "role=BUILDER")
}

func TestHandleRequestIgnoresOtherPayloadTypes(t *testing.T) {
	tr := &captureTransport{}
	w := NewWorker(KindValidator, "validator-1", t.TempDir(), tr, logger.Default())

	msg := transport.New("orchestrator", "validator-1", transport.IntentRequest, "task-1", map[string]any{
		"type": "something_else",
	})
	require.NoError(t, w.HandleRequest(context.Background(), msg))
	assert.Empty(t, tr.sent)
}

func TestCleanupAnnouncesOffline(t *testing.T) {
	tr := &captureTransport{}
	w := NewWorker(KindArchitect, "architect-1", t.TempDir(), tr, logger.Default())

	require.NoError(t, w.Cleanup(context.Background()))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "agent_offline", tr.sent[0].PayloadType())
}
