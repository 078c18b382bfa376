// Package runtime implements the per-agent event loop described in §4.2:
// pull messages, deduplicate, dispatch to intent handlers, emit
// acknowledgements and errors.
package runtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coordcore/core/internal/common/constants"
	"github.com/coordcore/core/internal/common/errors"
	"github.com/coordcore/core/internal/common/logger"
	"github.com/coordcore/core/internal/task"
	"github.com/coordcore/core/internal/transport"
)

// Handler processes one Message of a given Intent. A non-nil error causes
// the Runtime to emit an ERROR reply to the sender instead of an ACK.
type Handler func(ctx context.Context, msg *transport.Message) error

// Agent supplies the lifecycle hooks the Runtime drives. Concrete roles
// (architect, builder, validator, admin) implement this by composition
// over the Runtime rather than subclassing it.
type Agent interface {
	Initialize(ctx context.Context) error
	Cleanup(ctx context.Context) error
	OnIdle(ctx context.Context) error
}

// Options configures a Runtime instance.
type Options struct {
	AgentID        string
	AgentRole      string
	ReceiveTimeout time.Duration
	IdleThreshold  int
	DedupSize      int
}

// Runtime is one agent's event loop over a Transport. It owns the
// deduplication set and the intent handler catalogue; unhandled intents
// default to log-and-drop (§4.2).
type Runtime struct {
	opts      Options
	transport transport.Transport
	log       *logger.Logger
	agent     Agent

	handlers map[transport.Intent]Handler
	dedup    *dedupSet

	stopCh chan struct{}
}

// New constructs a Runtime. Callers register intent handlers with
// RegisterHandler before calling Run.
func New(opts Options, tr transport.Transport, agent Agent, log *logger.Logger) *Runtime {
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = constants.DefaultReceiveTimeout
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = constants.DefaultIdleThreshold
	}
	if opts.DedupSize < constants.MinDedupSetSize {
		opts.DedupSize = constants.MinDedupSetSize
	}
	return &Runtime{
		opts:      opts,
		transport: tr,
		log:       log.WithAgentID(opts.AgentID),
		agent:     agent,
		handlers:  make(map[transport.Intent]Handler),
		dedup:     newDedupSet(opts.DedupSize),
		stopCh:    make(chan struct{}),
	}
}

// RegisterHandler installs the handler for intent, overriding the default
// log-and-drop behavior.
func (r *Runtime) RegisterHandler(intent transport.Intent, h Handler) {
	r.handlers[intent] = h
}

// Stop requests the next Receive to return promptly and the loop to exit.
func (r *Runtime) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
}

// Run executes initialize, the main loop, then cleanup, in that order,
// each running to completion before the next phase begins (§4.2).
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.agent.Initialize(ctx); err != nil {
		return err
	}

	runErr := r.loop(ctx)

	grace, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownGrace)
	defer cancel()
	if err := r.agent.Cleanup(grace); err != nil {
		r.log.Error("cleanup failed", zap.Error(err))
	}

	return runErr
}

func (r *Runtime) loop(ctx context.Context) error {
	idleCount := 0

	// recvCtx is cancelled by Stop so a Receive already waiting in the
	// transport returns promptly instead of running out its timeout.
	recvCtx, cancelRecv := context.WithCancel(ctx)
	defer cancelRecv()
	go func() {
		select {
		case <-r.stopCh:
			cancelRecv()
		case <-recvCtx.Done():
		}
	}()

	for {
		select {
		case <-r.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := r.transport.Receive(recvCtx, r.opts.AgentID, r.opts.ReceiveTimeout)
		if err != nil {
			if recvCtx.Err() == nil {
				r.log.Error("receive failed", zap.Error(err))
			}
			continue
		}

		if msg == nil {
			idleCount++
			if idleCount >= r.opts.IdleThreshold {
				if err := r.agent.OnIdle(ctx); err != nil {
					r.log.Warn("on_idle failed", zap.Error(err))
				}
				idleCount = 0
			}
			continue
		}
		idleCount = 0

		if r.dedup.SeenAndAdd(msg.MessageID) {
			r.log.Debug("dropping duplicate message", zap.String("message_id", msg.MessageID))
			continue
		}

		r.route(ctx, msg)
	}
}

func (r *Runtime) route(ctx context.Context, msg *transport.Message) {
	if msg.Intent == transport.IntentRequest && msg.TaskID == "ping" && msg.PayloadType() == "ping" {
		r.handlePing(ctx, msg)
		return
	}

	handler, ok := r.handlers[msg.Intent]
	if !ok {
		r.log.Warn("no handler for intent", zap.String("intent", string(msg.Intent)))
		return
	}

	err := r.safeInvoke(ctx, handler, msg)
	if err != nil {
		r.log.Error("handler error",
			zap.String("intent", string(msg.Intent)),
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		reply := msg.ErrorReply(r.opts.AgentID, errors.HandlerError(string(msg.Intent), err))
		if sendErr := r.transport.Send(ctx, reply); sendErr != nil {
			r.log.Error("failed to send error reply", zap.Error(sendErr))
		}
		return
	}

	if !msg.IsBroadcast() {
		ack := msg.Ack(r.opts.AgentID)
		if sendErr := r.transport.Send(ctx, ack); sendErr != nil {
			r.log.Error("failed to send ack", zap.Error(sendErr))
		}
	}
}

// handlePing answers the ping sentinel (SPEC_FULL.md §C.2) directly,
// bypassing the handler catalogue and the Task Registry entirely: it is a
// pure liveness probe, not a task.
func (r *Runtime) handlePing(ctx context.Context, msg *transport.Message) {
	pong := transport.New(r.opts.AgentID, msg.SenderID, transport.IntentInform, "ping", map[string]any{
		"type": "pong",
	})
	if err := r.transport.Send(ctx, pong); err != nil {
		r.log.Error("failed to send pong", zap.Error(err))
	}
}

// safeInvoke recovers a panicking handler into an error so a single bad
// handler never crashes the event loop (§7 "Handler error").
func (r *Runtime) safeInvoke(ctx context.Context, h Handler, msg *transport.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.HandlerError(string(msg.Intent), panicAsError(p))
		}
	}()
	return h(ctx, msg)
}

func panicAsError(p any) error {
	if e, ok := p.(error); ok {
		return e
	}
	return fmt.Errorf("%v", p)
}

// BroadcastStatus constructs and sends a REPORT_STATUS broadcast, the
// Runtime helper role handlers call at task state transitions (§4.2).
func (r *Runtime) BroadcastStatus(ctx context.Context, taskID string, state task.State, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	msg := transport.New(r.opts.AgentID, transport.Broadcast, transport.IntentReportStatus, taskID, map[string]any{
		"status":     string(state),
		"details":    detail,
		"agent_role": r.opts.AgentRole,
	})
	return r.transport.Send(ctx, msg)
}

// Ping sends a REQUEST with the ping sentinel task_id (SPEC_FULL.md §C.2)
// and is used for lightweight out-of-band liveness checks between agents.
func (r *Runtime) Ping(ctx context.Context, to string) error {
	msg := transport.New(r.opts.AgentID, to, transport.IntentRequest, "ping", map[string]any{
		"type": "ping",
	})
	return r.transport.Send(ctx, msg)
}
