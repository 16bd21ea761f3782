package ipc

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/core"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

// Handler processes decoded request frames on the datastore side. For
// request-lane types the returned fields become the response frame; for
// oneway types the return values are ignored.
type Handler interface {
	Handle(req protocol.Request) ([]string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req protocol.Request) ([]string, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(req protocol.Request) ([]string, error) { return f(req) }

// Server is the datastore side of the IPC fabric: it listens on the Unix
// socket, decodes frames, answers request-lane types with exactly one reply
// frame, and drains oneway types through a bounded queue without replying.
type Server struct {
	path    string
	handler Handler
	logger  *slog.Logger

	ln     net.Listener
	oneway chan protocol.Request

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server bound to the given socket path. A stale socket
// file from a previous run is removed before binding.
func NewServer(path string, handler Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	s := &Server{
		path:    path,
		handler: handler,
		logger:  logger,
		ln:      ln,
		oneway:  make(chan protocol.Request, highWaterMark),
	}
	s.wg.Add(1)
	go s.onewayLoop()
	return s, nil
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Close stops the listener and waits for in-flight work to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	err := s.ln.Close()
	close(s.oneway)
	s.wg.Wait()
	return err
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	var writeMu sync.Mutex
	for {
		frame, err := readFrame(conn)
		if err != nil {
			return
		}
		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			s.logger.Error("ipc request decode failed", "error", err)
			continue
		}
		spec := protocol.Schema[req.Type]
		if spec.Lane == protocol.LaneOneway {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case s.oneway <- req:
			default:
				s.logger.Warn("ipc oneway queue full, dropping frame", "type", req.Type)
			}
			continue
		}

		// Each request runs on its own goroutine so a slow handler never
		// head-of-line blocks other correlation ids on the same socket.
		// writeMu keeps reply frames whole.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fields, handleErr := s.handleSafely(req)
			errStr := ""
			if handleErr != nil {
				errStr = wireError(handleErr)
			}
			reply := protocol.EncodeResponse(req.Type, req.ID, errStr, fields)
			writeMu.Lock()
			werr := writeFrame(conn, reply)
			writeMu.Unlock()
			if werr != nil {
				s.logger.Error("ipc reply failed", "type", req.Type, "error", werr)
			}
		}()
	}
}

func (s *Server) onewayLoop() {
	defer s.wg.Done()
	for req := range s.oneway {
		if _, err := s.handleSafely(req); err != nil {
			s.logger.Error("ipc oneway handler failed", "type", req.Type, "error", err)
		}
	}
}

// handleSafely converts handler panics into INTERNAL_ERROR so one bad
// payload cannot take the datastore loop down.
func (s *Server) handleSafely(req protocol.Request) (fields []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ipc handler panicked", "type", req.Type, "panic", r)
			fields = nil
			err = core.Newf(core.ErrInternal, "handler panic: %v", r)
		}
	}()
	return s.handler.Handle(req)
}

type wireNamer interface{ WireName() string }

// wireError renders a handler error as the response frame's error string.
// Business errors expose their short wire name (INVALID_AUTH, NO_CREDITS);
// canonical *core.Error kinds travel as the kind itself; anything else
// collapses to INTERNAL_ERROR.
func wireError(err error) string {
	var wn wireNamer
	if errors.As(err, &wn) {
		return wn.WireName()
	}
	var ce *core.Error
	if errors.As(err, &ce) && ce != nil {
		return string(ce.Kind)
	}
	return string(core.ErrInternal)
}
