package stores

import (
	"slices"
	"time"
)

// NotificationType is the severity of a notification.
type NotificationType string

// Notification types.
const (
	NotificationInfo  NotificationType = "INFO"
	NotificationError NotificationType = "ERROR"
)

// Notification is a transient message removed after Timeout.
type Notification struct {
	ID      int64
	Type    NotificationType
	Message string
	Timeout time.Duration
}

// NotificationEvent is emitted to subscribers when a notification is added
// or removed.
type NotificationEvent struct {
	Notification Notification
	Removed      bool
}

// Subscribe registers fn to be called on notification changes. fn is
// called without store lock held, possibly from a timer goroutine.
func (r *RuntimeStore) Subscribe(fn func(NotificationEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers = append(r.subscribers, fn)
}

func (r *RuntimeStore) emit(event NotificationEvent) {
	r.mu.Lock()
	subscribers := slices.Clone(r.subscribers)
	r.mu.Unlock()

	for _, fn := range subscribers {
		fn(event)
	}
}

// Notify enqueues a notification removed after timeout and returns its ID.
func (r *RuntimeStore) Notify(typ NotificationType, message string, timeout time.Duration) int64 {
	now := r.clock.Now()

	r.mu.Lock()
	// IDs derive from time and stay distinct for notifications created
	// within the same clock tick
	id := max(now.UnixNano(), r.lastNotification+1)
	r.lastNotification = id

	notification := Notification{ID: id, Type: typ, Message: message, Timeout: timeout}
	r.notifications = append(r.notifications, notification)
	r.mu.Unlock()

	// Timer is created without store lock so that an expiring timer never
	// waits on the store while holding clock internals.
	timer := r.clock.AfterFunc(timeout, func() { r.expire(id) })

	r.mu.Lock()
	if r.indexNotification(id) >= 0 {
		r.timers[id] = timer
	} else {
		timer.Stop()
	}
	r.mu.Unlock()

	r.emit(NotificationEvent{Notification: notification})

	return id
}

// RemoveNotification removes notification id and cancels its expiry.
// Removing an unknown id is a no-op.
func (r *RuntimeStore) RemoveNotification(id int64) {
	r.mu.Lock()
	timer, ok := r.timers[id]
	delete(r.timers, id)
	r.mu.Unlock()

	if ok {
		timer.Stop()
	}

	r.expire(id)
}

// expire drops notification id. It must not call into the clock as it runs
// from timer callbacks.
func (r *RuntimeStore) expire(id int64) {
	r.mu.Lock()

	idx := r.indexNotification(id)
	if idx < 0 {
		r.mu.Unlock()

		return
	}

	notification := r.notifications[idx]
	r.notifications = slices.Delete(r.notifications, idx, idx+1)
	delete(r.timers, id)
	r.mu.Unlock()

	r.emit(NotificationEvent{Notification: notification, Removed: true})
}

func (r *RuntimeStore) indexNotification(id int64) int {
	return slices.IndexFunc(r.notifications, func(n Notification) bool {
		return n.ID == id
	})
}

// Notifications returns a copy of the pending notifications.
func (r *RuntimeStore) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.notifications)
}
