// Package notify carries user-visible ephemeral notifications ("toasts")
// raised by the realtime core.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Level is the visual severity of a toast.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "info"
}

// Toast is one user-visible notification.
type Toast struct {
	Level   Level
	Message string
}

// Notifier displays toasts. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(t Toast)
}

// Func adapts a function to Notifier.
type Func func(Toast)

// Notify calls f(t).
func (f Func) Notify(t Toast) { f(t) }

// Discard drops every toast.
var Discard Notifier = Func(func(Toast) {})

// logNotifier renders toasts as log records.
type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier that writes each toast to logger.
func NewLogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(t Toast) {
	n.logger.Log(context.Background(), slogLevel(t.Level), t.Message, "toast", t.Level.String())
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Recorder keeps every toast in memory. Useful for status pages and tests.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

// Notify appends t.
func (r *Recorder) Notify(t Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Multi fans a toast out to several notifiers.
func Multi(notifiers ...Notifier) Notifier {
	return Func(func(t Toast) {
		for _, n := range notifiers {
			if n != nil {
				n.Notify(t)
			}
		}
	})
}
