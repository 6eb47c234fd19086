package chat

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

const DefaultReplayLimit = 50

type Registry struct {
	events      chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    sync.Once
	replayLimit int
	logger      *slog.Logger
}

// state is owned by the Run goroutine. Sessions and history are one unit.
type state struct {
	clients map[string]*Client
	history []Message
}

func NewRegistry(buffer, replayLimit int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if replayLimit <= 0 {
		replayLimit = DefaultReplayLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		events:      make(chan Event, buffer),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		replayLimit: replayLimit,
		logger:      logger,
	}
}

// Stop signals the Run loop to exit.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Wait blocks until the Run loop has completely finished.
func (r *Registry) Wait() {
	<-r.doneCh
}

func (r *Registry) Run() {
	defer close(r.doneCh)
	// Single-writer ownership: st is only accessed in this goroutine.
	st := &state{clients: make(map[string]*Client)}

	for {
		select {
		case ev := <-r.events:
			start := time.Now()

			var reply Reply
			switch ev.Type {
			case EventRegister:
				reply.Err = r.handleRegister(st, ev)
				ConnectedClients.Set(float64(len(st.clients)))
			case EventConnect:
				reply.Err = r.handleConnect(st, ev)
				ConnectedClients.Set(float64(len(st.clients)))
			case EventUnregister:
				r.handleUnregister(st, ev)
				ConnectedClients.Set(float64(len(st.clients)))
			case EventBroadcast:
				reply.Err = r.handleBroadcast(st, ev)
				HistoryMessages.Set(float64(len(st.history)))
			case EventPrivate:
				reply.Err = r.handlePrivate(st, ev)
			case EventReplay:
				reply.History = r.handleReplay(st, ev)
			case EventStatus:
				reply.Status = Status{Sessions: len(st.clients), Messages: len(st.history)}
			}
			if ev.ReplyChan != nil {
				ev.ReplyChan <- reply
			}

			MessagesTotal.WithLabelValues(ev.Type.String()).Inc()
			EventProcessingDuration.WithLabelValues(ev.Type.String()).Observe(time.Since(start).Seconds())
		case <-r.stopCh:
			return
		}
	}
}

// call submits ev and waits for the Run loop to answer it.
func (r *Registry) call(ev Event) (Reply, error) {
	ev.ReplyChan = make(chan Reply, 1)
	select {
	case r.events <- ev:
	case <-r.stopCh:
		return Reply{}, ErrRegistryStopped
	}
	select {
	case reply := <-ev.ReplyChan:
		return reply, reply.Err
	case <-r.doneCh:
		return Reply{}, ErrRegistryStopped
	}
}

// Register binds username to c. It fails with ErrDuplicateSession when the
// name already has a live session.
func (r *Registry) Register(c *Client, username string) error {
	_, err := r.call(Event{Type: EventRegister, Client: c, Username: username})
	return err
}

// Connect registers c like Register and, in the same step, queues the
// connected notice and the history replay on c. No broadcast can slip in
// between the two.
func (r *Registry) Connect(c *Client, username string) error {
	_, err := r.call(Event{Type: EventConnect, Client: c, Username: username})
	return err
}

// Unregister removes c's session. It is a no-op when c holds none, and it
// never removes a session that belongs to another client.
func (r *Registry) Unregister(c *Client) error {
	_, err := r.call(Event{Type: EventUnregister, Client: c})
	return err
}

// Broadcast delivers msg to every session except its sender and records it
// in history unless it is private or a system message.
func (r *Registry) Broadcast(msg Message) error {
	_, err := r.call(Event{Type: EventBroadcast, Message: msg})
	return err
}

// SendPrivate delivers msg to its recipient only.
func (r *Registry) SendPrivate(msg Message) error {
	_, err := r.call(Event{Type: EventPrivate, Message: msg})
	return err
}

// ReplayHistory returns the most recent history in chronological order, with
// username's own messages relabelled.
func (r *Registry) ReplayHistory(username string) ([]Message, error) {
	reply, err := r.call(Event{Type: EventReplay, Username: username})
	return reply.History, err
}

func (r *Registry) Status() (Status, error) {
	reply, err := r.call(Event{Type: EventStatus})
	return reply.Status, err
}

func (r *Registry) handleRegister(st *state, ev Event) error {
	username := strings.TrimSpace(ev.Username)
	if username == "" || ev.Client == nil {
		return ErrUsernameInvalid
	}
	if _, exists := st.clients[username]; exists {
		r.logger.Warn("duplicate session rejected", "username", username, "conn_id", ev.Client.ID)
		return ErrDuplicateSession
	}

	ev.Client.Username = username
	st.clients[username] = ev.Client

	r.logger.Info("user registered", "username", username, "conn_id", ev.Client.ID)
	return nil
}

func (r *Registry) handleConnect(st *state, ev Event) error {
	if err := r.handleRegister(st, ev); err != nil {
		return err
	}
	c := ev.Client
	r.enqueueMessage(c, systemNotice(msgConnected))

	history := r.handleReplay(st, Event{Username: c.Username})
	if len(history) == 0 {
		r.enqueueMessage(c, systemNotice(msgHistoryEmpty))
	}
	for _, m := range history {
		r.enqueueMessage(c, m)
	}
	return nil
}

func (r *Registry) handleUnregister(st *state, ev Event) {
	if ev.Client == nil || ev.Client.Username == "" {
		return
	}
	username := ev.Client.Username
	if current, ok := st.clients[username]; !ok || current != ev.Client {
		return
	}
	delete(st.clients, username)

	r.logger.Info("user left", "username", username, "conn_id", ev.Client.ID)
}

func (r *Registry) handleBroadcast(st *state, ev Event) error {
	msg := ev.Message
	if err := msg.Validate(); err != nil {
		return err
	}
	line, err := Encode(msg)
	if err != nil {
		return err
	}
	if msg.Stored() {
		st.history = append(st.history, msg)
	}

	recipients := lo.Filter(lo.Values(st.clients), func(c *Client, _ int) bool {
		return c.Username != msg.From
	})
	for _, c := range recipients {
		r.enqueue(c, line)
	}
	return nil
}

func (r *Registry) handlePrivate(st *state, ev Event) error {
	msg := ev.Message
	if err := msg.Validate(); err != nil {
		return err
	}
	receiver, ok := st.clients[strings.TrimSpace(msg.To)]
	if !ok {
		return ErrRecipientNotFound
	}
	line, err := Encode(msg)
	if err != nil {
		return err
	}
	r.enqueue(receiver, line)
	return nil
}

func (r *Registry) handleReplay(st *state, ev Event) []Message {
	tail := st.history[max(0, len(st.history)-r.replayLimit):]
	return lo.Map(tail, func(m Message, _ int) Message {
		if m.From != "" && m.From == ev.Username {
			m.From = SelfLabel
		}
		return m
	})
}

func (r *Registry) enqueueMessage(c *Client, m Message) {
	line, err := Encode(m)
	if err != nil {
		r.logger.Error("encode message", "error", err, "conn_id", c.ID)
		return
	}
	r.enqueue(c, line)
}

// enqueue never blocks: a slow client loses the record instead of stalling
// everyone else.
func (r *Registry) enqueue(c *Client, line []byte) {
	select {
	case c.Out <- line:
	default:
		DroppedDeliveries.Inc()
		r.logger.Warn("dropping message for slow client", "username", c.Username, "conn_id", c.ID)
	}
}
