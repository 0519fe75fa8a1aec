// Package notify delivers user-facing notifications.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/leia-project/viewer-sub001/internal/event"
)

// Topic and event name used for notifications on the bus and dispatcher.
const (
	Topic      = "notification"
	EventAdded = "notificationAdded"
)

// DefaultTimeout is how long a notification stays visible.
const DefaultTimeout = 5 * time.Second

type Type string

const (
	Debug Type = "debug"
	Info  Type = "info"
	Warn  Type = "warn"
	Error Type = "error"
)

// Notification is a timed, dismissible message for the user.
type Notification struct {
	ID           string        `json:"id"`
	Type         Type          `json:"type" enum:"debug,info,warn,error"`
	Title        string        `json:"title"`
	Message      string        `json:"message"`
	Timeout      time.Duration `json:"timeout"`
	ShowDate     bool          `json:"showDate"`
	LogToConsole bool          `json:"-"`
	Err          error         `json:"-"`
	ErrorText    string        `json:"error,omitempty"`
	Time         time.Time     `json:"time"`
}

// New creates a notification with the default timeout.
func New(t Type, title, message string) *Notification {
	return &Notification{Type: t, Title: title, Message: message, Timeout: DefaultTimeout}
}

// Notifications sends notifications to synchronous listeners, to the bus and
// optionally to the log.
type Notifications struct {
	event.Dispatcher

	bus    *event.Bus
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures Notifications.
type Option func(*Notifications)

// WithClock sets the clock used to stamp notifications.
func WithClock(c clockwork.Clock) Option {
	return func(n *Notifications) { n.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifications) { n.logger = l }
}

// NewNotifications creates a service publishing on bus. bus may be nil.
func NewNotifications(bus *event.Bus, opts ...Option) *Notifications {
	n := &Notifications{
		bus:    bus,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send stamps and delivers a notification.
func (n *Notifications) Send(note *Notification) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.Time.IsZero() {
		note.Time = n.clock.Now()
	}
	if note.Err != nil && note.ErrorText == "" {
		note.ErrorText = note.Err.Error()
	}

	n.Dispatch(EventAdded, note)
	if n.bus != nil {
		n.bus.Publish(event.Change{Topic: Topic, Name: EventAdded, ID: note.ID, Data: note})
	}

	if note.LogToConsole {
		n.log(note)
	}
}

func (n *Notifications) log(note *Notification) {
	attrs := []any{"title", note.Title, "message", note.Message}
	if note.Err != nil {
		attrs = append(attrs, "error", note.Err)
	}
	n.logger.Log(context.Background(), level(note.Type), "notification", attrs...)
}

func level(t Type) slog.Level {
	switch t {
	case Debug:
		return slog.LevelDebug
	case Warn:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
