// Package observe provides structured observability for the deployment
// pipeline. Every stage transition, build attempt, and cleanup action is
// emitted as an event, so operators can see from the log alone that a
// degraded fallback build is serving production.
package observe

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Observer receives structured events from the pipeline.
type Observer interface {
	// Printf logs a plain formatted message.
	Printf(format string, v ...any)

	// Event emits a structured event.
	Event(event Event)

	// WithFields returns an Observer that stamps the given fields onto
	// every event it emits.
	WithFields(fields map[string]string) Observer
}

// Event represents a structured pipeline event.
type Event struct {
	Type      EventType         // Type of event
	Stage     string            // Pipeline stage (e.g. "provisioning", "building")
	Message   string            // Human-readable message
	Resource  string            // Resource name/ID if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType classifies pipeline events.
type EventType string

const (
	// EventStageStarted indicates a pipeline stage has started.
	EventStageStarted EventType = "stage.started"
	// EventStageCompleted indicates a pipeline stage completed.
	EventStageCompleted EventType = "stage.completed"
	// EventStageFailed indicates a pipeline stage failed.
	EventStageFailed EventType = "stage.failed"

	// EventBuildAttempt indicates one build variant was tried.
	EventBuildAttempt EventType = "build.attempt"

	// EventResourceCreated indicates a provider resource was created.
	EventResourceCreated EventType = "resource.created"
	// EventResourceReused indicates an existing resource was reused.
	EventResourceReused EventType = "resource.reused"
	// EventResourceDeleted indicates a provider resource was reclaimed.
	EventResourceDeleted EventType = "resource.deleted"

	// EventHealthProbe indicates one health poll result.
	EventHealthProbe EventType = "health.probe"

	// EventRollback indicates the previous artifact was restarted.
	EventRollback EventType = "deploy.rollback"
)

// Console implements Observer using the standard log package.
type Console struct {
	contextFields map[string]string
}

// NewConsole creates a console-based observer.
func NewConsole() *Console {
	return &Console{contextFields: make(map[string]string)}
}

// Printf implements Observer.
func (o *Console) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (o *Console) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Fields == nil {
		event.Fields = make(map[string]string)
	}
	for k, v := range o.contextFields {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}
	log.Print(formatEvent(event))
}

// WithFields implements Observer.
func (o *Console) WithFields(fields map[string]string) Observer {
	merged := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Console{contextFields: merged}
}

// formatEvent renders an event for console output.
func formatEvent(event Event) string {
	var parts []string
	parts = append(parts, string(event.Type))
	if event.Stage != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Stage))
	}
	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", event.Resource))
	}
	parts = append(parts, event.Message)
	if len(event.Fields) > 0 {
		fieldParts := make([]string, 0, len(event.Fields))
		for k, v := range event.Fields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, v))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}
	return strings.Join(parts, " ")
}

// Nop is an Observer that discards everything. Used in tests.
type Nop struct{}

// Printf implements Observer.
func (Nop) Printf(string, ...any) {}

// Event implements Observer.
func (Nop) Event(Event) {}

// WithFields implements Observer.
func (n Nop) WithFields(map[string]string) Observer { return n }
