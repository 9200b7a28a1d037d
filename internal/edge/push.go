package edge

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Push payload defaults.
const (
	DefaultTitle = "App"
	DefaultBody  = "New notification"
)

// Notification is a displayed system notification.
type Notification struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	ShownAt time.Time `json:"shown_at"`
	Closed  bool      `json:"closed"`
}

// Notifier displays and dismisses notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, id string) error
}

// Window is an open client window.
type Window interface {
	URL() string
	Focus(ctx context.Context) error
}

// WindowClients enumerates and opens client windows.
type WindowClients interface {
	Windows(ctx context.Context) ([]Window, error)
	Open(ctx context.Context, url string) (Window, error)
}

type pushPayload struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
}

// ParsePush decodes a push payload. Missing, empty or malformed fields fall
// back to DefaultTitle and DefaultBody.
func ParsePush(payload []byte) (title, body string) {
	title, body = DefaultTitle, DefaultBody
	var p pushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return title, body
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		title = *p.Title
	}
	if p.Body != nil && strings.TrimSpace(*p.Body) != "" {
		body = *p.Body
	}
	return title, body
}

// HandlePush displays a notification for a push payload.
func (w *Worker) HandlePush(ctx context.Context, payload []byte) (Notification, error) {
	title, body := ParsePush(payload)
	n := Notification{
		ID:      uuid.NewString(),
		Title:   title,
		Body:    body,
		ShownAt: time.Now().UTC(),
	}
	if err := w.notifier.Show(ctx, n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// HandleNotificationClick dismisses n, then focuses a window already at the
// root URL or opens a new one there.
func (w *Worker) HandleNotificationClick(ctx context.Context, n Notification, clients WindowClients) error {
	if err := w.notifier.Close(ctx, n.ID); err != nil {
		log.Warn().Err(err).Str("notification_id", n.ID).Msg("close notification")
	}
	wins, err := clients.Windows(ctx)
	if err != nil {
		return err
	}
	for _, win := range wins {
		if isRoot(win.URL()) {
			return win.Focus(ctx)
		}
	}
	_, err = clients.Open(ctx, "/")
	return err
}

func isRoot(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Path == "" || u.Path == "/") && u.RawQuery == "" && u.Fragment == ""
}

// LogNotifier logs notifications and keeps the most recent ones in memory.
type LogNotifier struct {
	mu    sync.Mutex
	max   int
	items []Notification
}

// NewLogNotifier keeps at most max notifications.
func NewLogNotifier(max int) *LogNotifier {
	if max < 1 {
		max = 1
	}
	return &LogNotifier{max: max}
}

// Show records n.
func (l *LogNotifier) Show(_ context.Context, n Notification) error {
	log.Info().Str("notification_id", n.ID).Str("title", n.Title).Msg("notification shown")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, n)
	if over := len(l.items) - l.max; over > 0 {
		l.items = append([]Notification(nil), l.items[over:]...)
	}
	return nil
}

// Close marks the notification with id as dismissed.
func (l *LogNotifier) Close(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items[i].Closed = true
		}
	}
	return nil
}

// List returns the retained notifications, oldest first.
func (l *LogNotifier) List() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notification(nil), l.items...)
}
