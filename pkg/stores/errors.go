package stores

import (
	"slices"
	"time"
)

// Error log bounds.
const (
	maxRuntimeErrors    = 100
	errorNotifyDuration = 5 * time.Second
)

// RuntimeError is an entry of the diagnostic error log.
type RuntimeError struct {
	Timestamp time.Time
	Route     string
	Message   string
}

// ReportError logs message with current route and time, keeping the most
// recent errors only, and notifies it to the user.
func (r *RuntimeStore) ReportError(message string) {
	now := r.clock.Now()

	r.mu.Lock()
	r.errors = append(r.errors, RuntimeError{Timestamp: now, Route: r.route, Message: message})

	if excess := len(r.errors) - maxRuntimeErrors; excess > 0 {
		r.errors = slices.Delete(r.errors, 0, excess)
	}
	r.mu.Unlock()

	r.logger.Debug("Runtime error reported", "route", r.Route(), "msg", message)

	r.Notify(NotificationError, message, errorNotifyDuration)
}

// Errors returns a copy of the error log, oldest first.
func (r *RuntimeStore) Errors() []RuntimeError {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.errors)
}
