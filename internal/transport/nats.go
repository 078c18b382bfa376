package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/config"
	"github.com/coordcore/core/internal/common/logger"
)

const broadcastSubject = "coordcore.agent.broadcast"

func agentSubject(agentID string) string {
	return fmt.Sprintf("coordcore.agent.%s", agentID)
}

// NATSTransport is the primary broker-backed path: each recipient_id has a
// named subject, and broadcast uses a well-known subject every agent's
// Receive additionally subscribes to. Grounded on the teacher's
// internal/events/bus NATSEventBus (reconnection options, handler wiring),
// adapted from generic pub/sub into the blocking-pop-with-timeout contract
// the spec requires by buffering each agent's subscriptions into a
// per-agent channel.
type NATSTransport struct {
	conn   *nats.Conn
	logger *logger.Logger

	mu      sync.Mutex
	inboxes map[string]chan *Message
	subs    map[string][]*nats.Subscription
}

// NewNATSTransport dials the broker at cfg.URL. Returns an error if the
// connection cannot be established; callers treat this as "primary path
// unreachable" and fall back to the file log.
func NewNATSTransport(cfg config.NATSConfig, log *logger.Logger) (*NATSTransport, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(3 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &NATSTransport{
		conn:    conn,
		logger:  log,
		inboxes: make(map[string]chan *Message),
		subs:    make(map[string][]*nats.Subscription),
	}, nil
}

// Send publishes to the recipient's subject (or the broadcast subject).
func (t *NATSTransport) Send(ctx context.Context, msg *Message) error {
	subject := agentSubject(msg.RecipientID)
	if msg.IsBroadcast() {
		subject = broadcastSubject
	}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	if err := t.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Receive ensures agentID is subscribed to its own subject and the
// broadcast subject, then blocks on the buffered inbox for up to timeout.
func (t *NATSTransport) Receive(ctx context.Context, agentID string, timeout time.Duration) (*Message, error) {
	inbox, err := t.ensureSubscribed(agentID)
	if err != nil {
		return nil, err
	}
	select {
	case msg := <-inbox:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func (t *NATSTransport) ensureSubscribed(agentID string) (chan *Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ch, ok := t.inboxes[agentID]; ok {
		return ch, nil
	}

	// Buffered generously: NATS delivers in publish order per subject to a
	// given subscriber, so per-(sender,recipient) FIFO holds as long as we
	// never drop messages here.
	ch := make(chan *Message, 4096)
	handler := func(m *nats.Msg) {
		msg, err := Unmarshal(m.Data)
		if err != nil {
			t.logger.Warn("dropping malformed broker message", zap.Error(err))
			return
		}
		ch <- msg
	}

	directSub, err := t.conn.Subscribe(agentSubject(agentID), handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", agentSubject(agentID), err)
	}
	broadcastSub, err := t.conn.Subscribe(broadcastSubject, handler)
	if err != nil {
		directSub.Unsubscribe()
		return nil, fmt.Errorf("subscribe to broadcast: %w", err)
	}

	t.inboxes[agentID] = ch
	t.subs[agentID] = []*nats.Subscription{directSub, broadcastSub}
	return ch, nil
}

// IsConnected reports whether the broker connection is currently usable.
func (t *NATSTransport) IsConnected() bool {
	return t.conn != nil && t.conn.IsConnected()
}

// Close drains and closes the broker connection.
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, subs := range t.subs {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}
	if t.conn != nil {
		if err := t.conn.Drain(); err != nil {
			t.conn.Close()
		}
	}
	return nil
}
