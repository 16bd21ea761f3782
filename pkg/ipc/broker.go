// Package ipc carries the framed string protocol between the gateway and the
// datastore over a single Unix-domain socket. The gateway side (Broker) mints
// correlation ids and matches responses out of order against a pending-request
// table; the datastore side (Server) dispatches decoded requests to a handler.
package ipc

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/core"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

const (
	// DefaultTimeout bounds one request/response exchange.
	DefaultTimeout = 5 * time.Second
	// highWaterMark bounds the send queue; over-the-limit oneway sends are
	// dropped, over-the-limit requests fail.
	highWaterMark = 1000

	redialInterval = time.Second
)

// BrokerConfig configures the gateway-side broker.
type BrokerConfig struct {
	SocketPath string
	Timeout    time.Duration
	Logger     *slog.Logger
}

type brokerResult struct {
	resp protocol.Response
	err  error
}

type pendingRequest struct {
	expect protocol.MessageType
	ch     chan brokerResult
	timer  *time.Timer
}

// Broker is the gateway side of the IPC fabric. One broker serves the whole
// process; all sessions share its socket and pending table.
type Broker struct {
	cfg    BrokerConfig
	logger *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	pending   map[string]*pendingRequest
	destroyed bool

	sendQ chan string
	done  chan struct{}
}

// NewBroker connects to the datastore socket and starts the send and receive
// loops. The broker redials on connection loss until destroyed.
func NewBroker(cfg BrokerConfig) (*Broker, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b := &Broker{
		cfg:     cfg,
		logger:  cfg.Logger,
		pending: make(map[string]*pendingRequest),
		sendQ:   make(chan string, highWaterMark),
		done:    make(chan struct{}),
	}
	conn, err := net.Dial("unix", cfg.SocketPath)
	if err != nil {
		return nil, core.Newf(core.ErrIPCNotConnected, "dial %s: %v", cfg.SocketPath, err)
	}
	b.conn = conn
	go b.sendLoop()
	go b.receiveLoop(conn)
	return b, nil
}

// Connected reports whether the broker currently holds a live socket.
func (b *Broker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && !b.destroyed
}

// Request sends a request frame and blocks until the correlated response
// arrives or the timeout fires. Responses for other correlation ids may
// arrive and complete in any order meanwhile.
func (b *Broker) Request(typ protocol.MessageType, args ...string) (protocol.Response, error) {
	id := uuid.NewString()
	frame, err := protocol.EncodeRequest(protocol.Request{ID: id, Type: typ, Args: args})
	if err != nil {
		return protocol.Response{}, err
	}

	p := &pendingRequest{expect: typ, ch: make(chan brokerResult, 1)}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return protocol.Response{}, core.New(core.ErrIPCDestroyed, "broker destroyed")
	}
	if b.conn == nil {
		b.mu.Unlock()
		return protocol.Response{}, core.New(core.ErrIPCNotConnected, "datastore socket down")
	}
	// The pending record must exist before the frame can hit the wire,
	// otherwise a fast response races the table insert.
	b.pending[id] = p
	p.timer = time.AfterFunc(b.cfg.Timeout, func() { b.expire(id) })
	b.mu.Unlock()

	select {
	case b.sendQ <- frame:
	default:
		b.remove(id)
		return protocol.Response{}, core.Newf(core.ErrInternal, "%s: send queue full", typ)
	}

	res := <-p.ch
	return res.resp, res.err
}

// Oneway enqueues a fire-and-forget frame. Failures are logged and the frame
// is dropped; the caller is never blocked or failed.
func (b *Broker) Oneway(typ protocol.MessageType, args ...string) {
	frame, err := protocol.EncodeRequest(protocol.Request{ID: uuid.NewString(), Type: typ, Args: args})
	if err != nil {
		b.logger.Error("ipc oneway encode failed", "type", typ, "error", err)
		return
	}
	b.mu.Lock()
	down := b.destroyed || b.conn == nil
	b.mu.Unlock()
	if down {
		b.logger.Warn("ipc not connected, dropping oneway frame", "type", typ)
		return
	}
	select {
	case b.sendQ <- frame:
	default:
		b.logger.Warn("ipc send queue full, dropping oneway frame", "type", typ)
	}
}

// Destroy tears the broker down. Every pending request is rejected with
// INTERNAL_ZMQ_DESTROYED and its timer cancelled.
func (b *Broker) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	conn := b.conn
	b.conn = nil
	rejected := b.pending
	b.pending = make(map[string]*pendingRequest)
	b.mu.Unlock()

	close(b.done)
	if conn != nil {
		_ = conn.Close()
	}
	for _, p := range rejected {
		p.timer.Stop()
		p.ch <- brokerResult{err: core.New(core.ErrIPCDestroyed, "broker destroyed")}
	}
}

func (b *Broker) sendLoop() {
	for {
		select {
		case <-b.done:
			return
		case frame := <-b.sendQ:
			b.mu.Lock()
			conn := b.conn
			b.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := writeFrame(conn, frame); err != nil {
				b.logger.Error("ipc send failed", "error", err)
				b.dropConn(conn)
			}
		}
	}
}

func (b *Broker) receiveLoop(conn net.Conn) {
	for {
		frame, err := readFrame(conn)
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			b.logger.Warn("ipc receive failed, redialing", "error", err)
			b.dropConn(conn)
			next := b.redial()
			if next == nil {
				return
			}
			conn = next
			continue
		}
		b.dispatch(frame)
	}
}

// dispatch matches one inbound frame to its pending record by the leading
// correlation id, removes the record, cancels its timer, and delivers the
// decoded response.
func (b *Broker) dispatch(frame string) {
	id, _, ok := splitID(frame)
	if !ok {
		b.logger.Error("ipc frame missing correlation id", "frame_len", len(frame))
		return
	}

	b.mu.Lock()
	p, found := b.pending[id]
	if found {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !found {
		b.logger.Warn("ipc response with no pending request",
			"correlation_id", id, "kind", core.ErrIPCNoPendingRequest)
		return
	}
	p.timer.Stop()

	resp, err := protocol.DecodeResponse(p.expect, frame)
	if err != nil {
		p.ch <- brokerResult{err: core.Newf(core.ErrIPCInvalidResponse, "decode %s response: %v", p.expect, err)}
		return
	}
	p.ch <- brokerResult{resp: resp}
}

func (b *Broker) expire(id string) {
	b.mu.Lock()
	p, found := b.pending[id]
	if found {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !found {
		return
	}
	p.ch <- brokerResult{err: core.Newf(core.ErrIPCRequestTimeout, "no response within %s", b.cfg.Timeout)}
}

func (b *Broker) remove(id string) {
	b.mu.Lock()
	if p, found := b.pending[id]; found {
		delete(b.pending, id)
		p.timer.Stop()
	}
	b.mu.Unlock()
}

func (b *Broker) dropConn(conn net.Conn) {
	_ = conn.Close()
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
}

func (b *Broker) redial() net.Conn {
	for {
		select {
		case <-b.done:
			return nil
		case <-time.After(redialInterval):
		}
		conn, err := net.Dial("unix", b.cfg.SocketPath)
		if err != nil {
			continue
		}
		b.mu.Lock()
		if b.destroyed {
			b.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		b.conn = conn
		b.mu.Unlock()
		b.logger.Info("ipc reconnected", "socket", b.cfg.SocketPath)
		return conn
	}
}

func splitID(frame string) (id, rest string, ok bool) {
	for i := 0; i < len(frame); i++ {
		if frame[i] == protocol.Delimiter[0] {
			return frame[:i], frame[i+1:], true
		}
	}
	return "", "", false
}
