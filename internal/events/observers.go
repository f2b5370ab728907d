package events

import (
	"log/slog"
)

// LoggingObserver logs all events for debugging purposes.
type LoggingObserver struct {
	name    string
	logger  *slog.Logger
	verbose bool
}

// NewLoggingObserver creates a new observer that logs events.
func NewLoggingObserver(logger *slog.Logger, verbose bool) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{
		name:    "LoggingObserver",
		logger:  logger,
		verbose: verbose,
	}
}

// OnEvent logs the event details.
func (o *LoggingObserver) OnEvent(event Event) error {
	if o.verbose {
		o.logger.Debug("Event", "type", event.Type, "data", event.Data)
	} else {
		o.logger.Debug("Event", "type", event.Type)
	}
	return nil
}

// GetName returns the observer's name.
func (o *LoggingObserver) GetName() string {
	return o.name
}

// ShouldHandle returns true for all events (logs everything).
func (o *LoggingObserver) ShouldHandle(eventType string) bool {
	return true
}

// FuncObserver adapts a function to the Observer interface. An empty type
// list handles every event.
type FuncObserver struct {
	Name  string
	Types []string
	Fn    func(Event) error
}

// OnEvent calls the wrapped function.
func (o *FuncObserver) OnEvent(event Event) error {
	return o.Fn(event)
}

// GetName returns the observer's name.
func (o *FuncObserver) GetName() string {
	return o.Name
}

// ShouldHandle reports whether eventType is in Types.
func (o *FuncObserver) ShouldHandle(eventType string) bool {
	if len(o.Types) == 0 {
		return true
	}
	for _, t := range o.Types {
		if t == eventType {
			return true
		}
	}
	return false
}
