package notify

import "log"

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

type Notification struct {
	Severity Severity
	Title    string
	Detail   string
	// Sticky marks persistent notifications, used for connectivity
	// failures which degrade the session until reconnect.
	Sticky bool
}

// Notifier is the user-facing notification surface. The rendering layer
// supplies its own implementation; every failure path in the chat core
// produces a human-readable notification through it.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a logger. It is the default used
// when no UI is attached.
type LogNotifier struct {
	Log *log.Logger
}

func (l *LogNotifier) Notify(n Notification) {
	l.Log.Printf("[%s] %s: %s", n.Severity, n.Title, n.Detail)
}
