package chat

import (
	"fmt"
	"net"

	"github.com/google/uuid"
)

type Client struct {
	ID       string
	Conn     net.Conn
	Username string
	Out      chan []byte // encoded records written by the outbound writer goroutine
}

func NewClient(conn net.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 128
	}
	return &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Out:  make(chan []byte, buffer),
	}
}

type EventType int

const (
	EventRegister EventType = iota
	EventUnregister
	EventBroadcast
	EventPrivate
	EventReplay
	EventStatus
	EventConnect
)

func (t EventType) String() string {
	switch t {
	case EventRegister:
		return "register"
	case EventUnregister:
		return "unregister"
	case EventBroadcast:
		return "broadcast"
	case EventPrivate:
		return "private"
	case EventReplay:
		return "replay"
	case EventStatus:
		return "status"
	case EventConnect:
		return "connect"
	}
	return "unknown"
}

type Event struct {
	Type      EventType
	Client    *Client
	Username  string
	Message   Message
	ReplyChan chan Reply
}

type Reply struct {
	Err     error
	History []Message
	Status  Status
}

type Status struct {
	Sessions int
	Messages int
}

func (s Status) String() string {
	return fmt.Sprintf("Connected clients: %d, messages: %d", s.Sessions, s.Messages)
}

var (
	ErrDuplicateSession  = errorString("duplicate_session")
	ErrUsernameInvalid   = errorString("username_invalid")
	ErrRecipientNotFound = errorString("recipient_not_found")
	ErrInvalidMessage    = errorString("invalid_message")
	ErrInvalidHandshake  = errorString("invalid_handshake")
	ErrNotFound          = errorString("not_found")
	ErrRegistryStopped   = errorString("registry_stopped")
)

type errorString string

func (e errorString) Error() string { return string(e) }
