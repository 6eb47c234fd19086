package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const (
	// QuitCode is the payload of the system message a client sends to leave.
	QuitCode = "1"
	// SelfLabel replaces the sender of replayed messages the reader wrote.
	SelfLabel = "You"
)

// Server notices.
const (
	msgConnected        = "Connected to the chat."
	msgDisconnected     = "Disconnected from the chat."
	msgMultipleSessions = "Cannot provide multiple sessions for user."
	msgHistoryEmpty     = "Chat history empty. Write something!"
	msgUnexpected       = "Unexpected error."
	msgInvalidHandshake = "Invalid handshake: a non-empty username is required."
	msgTooLong          = "Message is too long."
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// Message is one chat record. It travels as a single JSON line.
type Message struct {
	Data      string `json:"data" validate:"notblank"`
	From      string `json:"from_username,omitempty"`
	To        string `json:"to_username,omitempty"`
	IsPrivate bool   `json:"is_private"`
	IsSystem  bool   `json:"is_system"`
	IsError   bool   `json:"is_error"`
}

type Kind int

const (
	KindBroadcast Kind = iota
	KindPrivate
	KindSystem
	KindSystemQuit
)

func (k Kind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindPrivate:
		return "private"
	case KindSystem:
		return "system"
	case KindSystemQuit:
		return "quit"
	}
	return "unknown"
}

// Kind classifies a message received from a session.
func (m Message) Kind() Kind {
	switch {
	case m.IsSystem && strings.TrimSpace(m.Data) == QuitCode:
		return KindSystemQuit
	case m.IsSystem:
		return KindSystem
	case m.To != "":
		return KindPrivate
	default:
		return KindBroadcast
	}
}

// Stored reports whether the message belongs in history.
func (m Message) Stored() bool {
	return !m.IsPrivate && !m.IsSystem
}

func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: empty data", ErrInvalidMessage)
	}
	return nil
}

// Encode renders m as one newline-terminated JSON record.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return append(b, '\n'), nil
}

// Decode parses one record. A record that is not JSON or whose data is
// blank wraps ErrInvalidMessage.
func Decode(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(line))), &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func systemNotice(text string) Message {
	return Message{Data: text, IsSystem: true}
}

func errorNotice(text string) Message {
	return Message{Data: text, IsSystem: true, IsError: true}
}

type handshake struct {
	Username string `json:"username" validate:"notblank"`
}

// decodeHandshake extracts the identity from a /connect body.
func decodeHandshake(body string) (string, error) {
	var h handshake
	if err := json.Unmarshal([]byte(body), &h); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}
	if err := validate.Struct(h); err != nil {
		return "", fmt.Errorf("%w: username is required", ErrInvalidHandshake)
	}
	return strings.TrimSpace(h.Username), nil
}
