package chat

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/andy6609/linechat/internal/wire"
)

type Options struct {
	Addr             string
	ServerName       string
	Limits           wire.Limits
	ReplayLimit      int
	OutboundBuffer   int
	RegistryBuffer   int
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
}

type Server struct {
	opts     Options
	logger   *slog.Logger
	reg      *Registry
	api      *API
	listener net.Listener

	mu       sync.Mutex
	stopping bool
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Limits == (wire.Limits{}) {
		opts.Limits = wire.DefaultLimits
	}
	if opts.ReplayLimit <= 0 {
		opts.ReplayLimit = DefaultReplayLimit
	}
	// A join queues the connected notice plus a full replay at once.
	if opts.OutboundBuffer < opts.ReplayLimit+2 {
		opts.OutboundBuffer = opts.ReplayLimit + 2
	}
	return &Server{
		opts:   opts,
		logger: logger,
		reg:    NewRegistry(opts.RegistryBuffer, opts.ReplayLimit, logger),
		conns:  make(map[net.Conn]struct{}),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	host, _, err := net.SplitHostPort(s.opts.Addr)
	if err != nil {
		_ = ln.Close()
		return err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	s.api = NewAPI(s.reg, host, s.opts.ServerName, port, s.logger)

	go s.reg.Run()
	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String(), "server_name", s.opts.ServerName)
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Registry() *Registry {
	return s.reg
}

func (s *Server) Stop() {
	if s.listener == nil {
		return
	}
	s.logger.Info("shutting down")
	s.listener.Close()

	s.mu.Lock()
	s.stopping = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.reg.Stop()
	s.reg.Wait()

	s.logger.Info("shutdown complete")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// closed listener: normal shutdown
			return
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(conn)
		}()
	}
}

// track registers conn for shutdown. It refuses once Stop has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// serveConn reads the first envelope and either answers it once or upgrades
// the connection to a chat session.
func (s *Server) serveConn(conn net.Conn) {
	c := NewClient(conn, s.opts.OutboundBuffer)
	logger := s.logger.With("conn_id", c.ID, "remote", conn.RemoteAddr().String())
	logger.Info("client connected")

	reader := bufio.NewReader(conn)
	if s.opts.HandshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	}
	req, err := wire.ReadRequest(reader, s.opts.Limits)
	_ = conn.SetReadDeadline(time.Time{})

	if err != nil {
		if errors.Is(err, io.EOF) {
			logger.Debug("closed before any request")
			_ = conn.Close()
			return
		}
		if isTransportError(err) {
			logger.Warn("connection dropped before a full request", "error", err)
			_ = conn.Close()
			return
		}
		logger.Warn("bad request", "error", err)
		s.reply(conn, logger, s.api.ErrorResponse(err))
		return
	}
	logger.Debug("request", "method", req.Method, "target", req.Target)

	route, err := s.api.Route(req)
	if err != nil {
		logger.Warn("request rejected", "error", err)
		s.reply(conn, logger, s.api.ErrorResponse(err))
		return
	}

	if route == RouteConnect {
		HandleSession(c, reader, req, s.reg, SessionConfig{
			MaxLine:      s.opts.Limits.MaxLine,
			WriteTimeout: s.opts.WriteTimeout,
			IdleTimeout:  s.opts.IdleTimeout,
		}, s.logger)
		return
	}

	s.reply(conn, logger, s.api.Handle(route, req))
}

func (s *Server) reply(conn net.Conn, logger *slog.Logger, resp *wire.Response) {
	defer conn.Close()
	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if _, err := conn.Write(resp.Bytes()); err != nil {
		logger.Warn("write response failed", "error", err)
		return
	}
	logger.Info("closed connection", "status", resp.Status)
}

// isTransportError reports failures of the stream itself, which leave no
// peer to answer.
func isTransportError(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
