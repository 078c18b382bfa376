package transport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/config"
	"github.com/coordcore/core/internal/common/constants"
	"github.com/coordcore/core/internal/common/errors"
	"github.com/coordcore/core/internal/common/logger"
)

// HybridTransport implements the Transport contract over both paths: it
// attempts the broker-backed primary on each call and transparently falls
// back to the append-only log on failure, per §4.1's selection policy. The
// fallback alone is used when no BROKER_URL is configured.
type HybridTransport struct {
	primary  *NATSTransport // nil when no broker is configured
	fallback *FileLogTransport
	log      *logger.Logger

	mu            sync.Mutex
	brokerHealthy bool
	lastProbeAt   time.Time
}

// NewHybridTransport wires the fallback log (always present) and, if
// cfg.URL is non-empty, attempts to dial the broker for the primary path.
// A failed dial is not fatal: the Transport simply runs fallback-only,
// matching "absent disables primary path" in §6.
func NewHybridTransport(sharedDir string, cfg config.NATSConfig, log *logger.Logger) (*HybridTransport, error) {
	fallback, err := NewFileLogTransport(sharedDir, log)
	if err != nil {
		return nil, err
	}

	h := &HybridTransport{
		fallback: fallback,
		log:      log,
	}

	if cfg.URL != "" {
		primary, err := NewNATSTransport(cfg, log)
		if err != nil {
			log.Warn("broker unreachable at startup, using fallback log only", zap.Error(err))
		} else {
			h.primary = primary
			h.brokerHealthy = true
			h.lastProbeAt = time.Now()
		}
	}

	return h, nil
}

func (h *HybridTransport) probeBroker() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.primary == nil {
		return false
	}
	if time.Since(h.lastProbeAt) < constants.BrokerStatusCacheTTL {
		return h.brokerHealthy
	}
	h.lastProbeAt = time.Now()
	h.brokerHealthy = h.primary.IsConnected()
	return h.brokerHealthy
}

func (h *HybridTransport) markUnhealthy() {
	h.mu.Lock()
	h.brokerHealthy = false
	h.mu.Unlock()
}

// Send attempts the primary path first (when configured and believed
// healthy) and falls back to the log on failure. A send that cannot reach
// either path returns a TransportUnavailable error (§7).
func (h *HybridTransport) Send(ctx context.Context, msg *Message) error {
	if h.probeBroker() {
		if err := h.primary.Send(ctx, msg); err == nil {
			return nil
		} else {
			h.log.Warn("primary transport send failed, falling back", zap.Error(err))
			h.markUnhealthy()
		}
	}

	if err := h.fallback.Send(ctx, msg); err != nil {
		return errors.TransportUnavailable(err.Error())
	}
	return nil
}

// Receive attempts the primary path first, falling back to the log if the
// broker is unreachable. Each path gets up to the full timeout; a miss on
// the primary path due to connectivity falls through to the fallback
// immediately rather than consuming the whole budget twice.
func (h *HybridTransport) Receive(ctx context.Context, agentID string, timeout time.Duration) (*Message, error) {
	if h.probeBroker() {
		msg, err := h.primary.Receive(ctx, agentID, timeout)
		if err == nil {
			return msg, nil
		}
		h.log.Warn("primary transport receive failed, falling back", zap.Error(err))
		h.markUnhealthy()
	}

	return h.fallback.Receive(ctx, agentID, timeout)
}

// Close releases both paths' resources.
func (h *HybridTransport) Close() error {
	if h.primary != nil {
		h.primary.Close()
	}
	return h.fallback.Close()
}

var _ Transport = (*HybridTransport)(nil)
