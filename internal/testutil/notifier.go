package testutil

import (
	"sync"

	"github.com/leoalsantos/custosmart-chat/internal/notify"
)

// RecordingNotifier captures notifications for assertions.
type RecordingNotifier struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (r *RecordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *RecordingNotifier) All() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.notifications...)
}

func (r *RecordingNotifier) Last() (notify.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notifications) == 0 {
		return notify.Notification{}, false
	}
	return r.notifications[len(r.notifications)-1], true
}
