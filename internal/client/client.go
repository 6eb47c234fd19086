// Package client talks to a chat server: one-shot control requests and an
// interactive session over an upgraded connection.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/andy6609/linechat/internal/chat"
	"github.com/andy6609/linechat/internal/wire"
	"github.com/gookit/color"
)

var privateRe = regexp.MustCompile(`^@(\w+)`)

type Client struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger
	dialer  net.Dialer
}

func New(addr string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{addr: addr, timeout: timeout, logger: logger}
}

func (c *Client) header() wire.Header {
	return wire.Header{wire.HostHeader: c.addr}
}

// do sends one envelope and reads its response.
func (c *Client) do(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(req.Bytes()); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := wire.ReadResponse(bufio.NewReader(conn), wire.DefaultLimits)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("response", "target", req.Target, "status", resp.Status)
	return resp, nil
}

func (c *Client) Status(ctx context.Context) (*wire.Response, error) {
	return c.do(ctx, wire.NewRequest("GET", "/status", c.header(), ""))
}

func (c *Client) SendAll(ctx context.Context, from, text string) (*wire.Response, error) {
	return c.post(ctx, "/send-all", chat.Message{Data: text, From: from})
}

func (c *Client) SendPrivate(ctx context.Context, from, to, text string) (*wire.Response, error) {
	return c.post(ctx, "/send-private", chat.Message{Data: text, From: from, To: to, IsPrivate: true})
}

func (c *Client) post(ctx context.Context, target string, m chat.Message) (*wire.Response, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, wire.NewRequest("POST", target, c.header(), string(body)))
}

// Session is an upgraded connection carrying message records.
type Session struct {
	Username string
	conn     net.Conn
	r        *bufio.Reader
}

// Connect opens a chat session for username.
func (c *Client) Connect(ctx context.Context, username string) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	body, err := json.Marshal(map[string]string{"username": username})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Write(wire.NewRequest("POST", "/connect", c.header(), string(body)).Bytes()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("write handshake: %w", err)
	}
	return &Session{Username: username, conn: conn, r: bufio.NewReader(conn)}, nil
}

// Receive blocks for the next record from the server.
func (s *Session) Receive() (chat.Message, error) {
	line, err := wire.ReadLine(s.r, wire.MaxLine)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Decode([]byte(line))
}

func (s *Session) Send(m chat.Message) error {
	raw, err := chat.Encode(m)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(raw)
	return err
}

// Say sends a line typed by the user. A leading @name makes it private.
func (s *Session) Say(text string) error {
	return s.Send(ParseInput(s.Username, text))
}

// Quit asks the server to end the session.
func (s *Session) Quit() error {
	return s.Send(chat.Message{Data: chat.QuitCode, IsSystem: true})
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// ParseInput turns a typed line into a record.
func ParseInput(from, text string) chat.Message {
	m := chat.Message{Data: text, From: from}
	if match := privateRe.FindStringSubmatch(text); match != nil {
		m.To = match[1]
		m.IsPrivate = true
	}
	return m
}

// Render formats a received record for the terminal.
func Render(m chat.Message) string {
	var b strings.Builder
	if m.IsPrivate {
		b.WriteString(color.Red.Sprint("[private] "))
	}
	text := strings.TrimSpace(m.Data)
	if m.From != "" {
		text = m.From + ": " + text
	}
	switch {
	case m.IsError:
		b.WriteString(color.Red.Sprint(text))
	case m.IsSystem:
		b.WriteString(color.Yellow.Sprint(text))
	default:
		b.WriteString(text)
	}
	return b.String()
}
