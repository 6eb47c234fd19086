package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/andy6609/linechat/internal/wire"
)

type State int

const (
	StateHandshaking State = iota
	StateActive
	StateTerminating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type SessionConfig struct {
	MaxLine      int
	WriteTimeout time.Duration
	IdleTimeout  time.Duration // zero waits forever
}

func (c SessionConfig) orDefault() SessionConfig {
	if c.MaxLine <= 0 {
		c.MaxLine = wire.MaxLine
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Hub is the part of the registry a session drives.
type Hub interface {
	Connect(c *Client, username string) error
	Unregister(c *Client) error
	Broadcast(msg Message) error
	SendPrivate(msg Message) error
}

type session struct {
	client *Client
	reader *bufio.Reader
	req    *wire.Request
	reg    Hub
	cfg    SessionConfig
	logger *slog.Logger
	state  State
}

// HandleSession drives an upgraded connection from its /connect envelope to
// teardown. reader must be the one the envelope was parsed from so buffered
// records are not lost. The connection is closed on return.
func HandleSession(c *Client, reader *bufio.Reader, req *wire.Request, reg Hub, cfg SessionConfig, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &session{
		client: c,
		reader: reader,
		req:    req,
		reg:    reg,
		cfg:    cfg.orDefault(),
		logger: logger.With("conn_id", c.ID),
		state:  StateHandshaking,
	}

	done := StartOutboundWriter(c.Conn, c.Out, s.cfg.WriteTimeout)
	defer s.close(done)

	for s.state != StateClosed {
		next := s.step()
		s.logger.Debug("session transition", "from", s.state, "to", next)
		s.state = next
	}
}

// step runs the current state. A panic is logged and forces teardown.
func (s *session) step() (next State) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("internal error", "state", s.state, "panic", rec)
			s.notify(errorNotice(msgUnexpected))
			next = StateTerminating
			if s.state == StateTerminating {
				next = StateClosed
			}
		}
	}()

	switch s.state {
	case StateHandshaking:
		return s.handshake()
	case StateActive:
		return s.active()
	case StateTerminating:
		return s.terminate()
	}
	return StateClosed
}

func (s *session) handshake() State {
	username, err := decodeHandshake(s.req.Body)
	if err != nil {
		s.logger.Warn("handshake rejected", "error", err)
		s.notify(errorNotice(msgInvalidHandshake))
		return StateClosed
	}

	if err := s.reg.Connect(s.client, username); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateSession):
			s.notify(errorNotice(msgMultipleSessions))
		case errors.Is(err, ErrUsernameInvalid):
			s.notify(errorNotice(msgInvalidHandshake))
		default:
			s.logger.Error("register failed", "username", username, "error", err)
			s.notify(errorNotice(msgUnexpected))
		}
		return StateClosed
	}
	s.logger = s.logger.With("username", username)
	return StateActive
}

func (s *session) active() State {
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = s.client.Conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		line, err := wire.ReadLine(s.reader, s.cfg.MaxLine)
		switch {
		case errors.Is(err, wire.ErrLineTooLong):
			s.notify(errorNotice(msgTooLong))
			continue
		case errors.Is(err, io.EOF):
			return StateTerminating
		case err != nil:
			s.logger.Warn("read failed", "error", err)
			return StateTerminating
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		msg, err := Decode([]byte(line))
		if err != nil {
			s.logger.Warn("invalid message", "error", err)
			s.notify(errorNotice(err.Error()))
			continue
		}
		msg.From = s.client.Username

		switch msg.Kind() {
		case KindSystemQuit:
			return StateTerminating
		case KindPrivate:
			msg.IsPrivate = true
			err = s.reg.SendPrivate(msg)
			if errors.Is(err, ErrRecipientNotFound) {
				s.logger.Warn("user not found", "to", msg.To)
				s.notify(errorNotice(fmt.Sprintf("User %s not found.", msg.To)))
				continue
			}
		case KindSystem, KindBroadcast:
			msg.IsPrivate = false
			err = s.reg.Broadcast(msg)
		}
		if err != nil {
			s.logger.Error("delivery failed", "error", err)
			s.notify(errorNotice(msgUnexpected))
			return StateTerminating
		}
	}
}

func (s *session) terminate() State {
	if err := s.reg.Unregister(s.client); err != nil {
		s.logger.Warn("unregister failed", "error", err)
	}
	s.notify(systemNotice(msgDisconnected))
	return StateClosed
}

// notify queues a record for this connection only. It waits at most the
// write timeout for queue space.
func (s *session) notify(m Message) {
	line, err := Encode(m)
	if err != nil {
		s.logger.Error("encode notice", "error", err)
		return
	}
	timer := time.NewTimer(s.cfg.WriteTimeout)
	defer timer.Stop()
	select {
	case s.client.Out <- line:
	case <-timer.C:
		DroppedDeliveries.Inc()
		s.logger.Warn("dropping notice for slow client", "data", m.Data)
	}
}

// close makes sure the registry no longer references the client before its
// queue is closed, lets the writer flush, then closes the connection.
func (s *session) close(done <-chan struct{}) {
	_ = s.reg.Unregister(s.client)
	close(s.client.Out)

	timer := time.NewTimer(s.cfg.WriteTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
	_ = s.client.Conn.Close()
	s.logger.Info("session closed")
}
