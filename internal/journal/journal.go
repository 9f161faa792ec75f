// Package journal records saga lifecycle events for diagnostics: each
// terminal decision (and saga start) is published to one or more sinks.
// Publishing is best-effort and never feeds back into saga state.
package journal

import (
	"context"
	"errors"
	"log"
	"time"
)

// EventType labels a saga lifecycle milestone.
type EventType string

const (
	EventStarted     EventType = "saga_started"
	EventCompleted   EventType = "saga_completed"
	EventCompensated EventType = "saga_compensated"
	EventReaped      EventType = "saga_reaped"
)

// Event is one saga lifecycle record.
type Event struct {
	OrderID string
	Type    EventType
	Detail  string
	At      time.Time
}

// Publisher abstracts an event sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Discard drops all events.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to the process log.
type LogPublisher struct {
	Logf func(format string, args ...any)
}

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	logf := p.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("[journal] order %s: %s (%s)", ev.OrderID, ev.Type, ev.Detail)
	return nil
}

// FanoutPublisher forwards each event to every target and reports the
// errors joined, so one slow or broken sink does not hide the others.
type FanoutPublisher struct {
	targets []Publisher
}

// NewFanoutPublisher constructs a publisher over the given targets.
func NewFanoutPublisher(targets ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{targets: targets}
}

func (p *FanoutPublisher) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, t := range p.targets {
		if err := t.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
