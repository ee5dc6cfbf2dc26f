package host

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/event/events"
	"github.com/dshills/hostkit/internal/plugin"
	"github.com/dshills/hostkit/internal/service"
)

// EventLogEntry is the native entry name of the built-in event log plugin.
const EventLogEntry = "eventlog"

// DefaultEventLogSize is the number of entries the event log keeps.
const DefaultEventLogSize = 256

// EventLog is the service offered by the built-in event log plugin.
type EventLog interface {
	// Recent returns up to n entries, newest last. n <= 0 returns all.
	Recent(n int) []LogEntry
}

// LogEntry is one recorded lifecycle event.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Event   string    `json:"event"`
	Subject string    `json:"subject,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// eventLog records lifecycle events in a bounded buffer. It listens at
// monitor priority so it sees the outcome of every other handler.
type eventLog struct {
	mu      sync.Mutex
	entries []LogEntry
	size    int
	now     func() time.Time
}

func newEventLog(size int) *eventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	return &eventLog{size: size, now: time.Now}
}

// eventLogFactory creates the plugin and publishes it as the EventLog service.
func eventLogFactory(size int) func(context.Context, plugin.InitContext) (any, error) {
	return func(_ context.Context, init plugin.InitContext) (any, error) {
		l := newEventLog(size)
		if init.Services != nil {
			if _, err := service.Register[EventLog](init.Services, l, l, service.Normal); err != nil {
				return nil, err
			}
		}
		return l, nil
	}
}

func (l *eventLog) record(name, subject, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.size {
		l.entries = slices.Delete(l.entries, 0, 1)
	}
	l.entries = append(l.entries, LogEntry{Time: l.now(), Event: name, Subject: subject, Detail: detail})
}

// Recent implements EventLog.
func (l *eventLog) Recent(n int) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	return slices.Clone(l.entries[len(l.entries)-n:])
}

// Handlers implements event.Listener.
func (l *eventLog) Handlers() []event.Handler {
	p := event.PriorityMonitor
	return []event.Handler{
		event.On(p, func(_ context.Context, e events.PluginEnabled) error {
			l.record(e.EventName(), e.ID, fmt.Sprintf("%s via %s", e.Version, e.Loader))
			return nil
		}),
		event.On(p, func(_ context.Context, e events.PluginDisabled) error {
			l.record(e.EventName(), e.ID, e.Version)
			return nil
		}),
		event.On(p, func(_ context.Context, e events.PluginSkipped) error {
			subject := e.ID
			if subject == "" {
				subject = e.Path
			}
			l.record(e.EventName(), subject, e.Reason+": "+e.Error)
			return nil
		}),
		event.On(p, func(_ context.Context, e events.PluginsLoaded) error {
			l.record(e.EventName(), e.Dir, fmt.Sprintf("%d loaded, %d skipped", len(e.Loaded), e.Skipped))
			return nil
		}),
		event.On(p, func(_ context.Context, e events.HostStarted) error {
			l.record(e.EventName(), "", fmt.Sprintf("%d plugins", e.Plugins))
			return nil
		}),
		event.On(p, func(_ context.Context, e events.HostStopping) error {
			l.record(e.EventName(), "", e.Reason)
			return nil
		}),
	}
}

// String implements fmt.Stringer.
func (l *eventLog) String() string {
	return EventLogEntry
}
