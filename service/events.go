package service

import (
	"time"

	"github.com/MrChuw/scrcpy-manager/models"
)

// EventSink receives session events. Implementations must be safe for concurrent use.
type EventSink interface {
	Publish(event models.Event)
}

// MultiSink fans an event out to every non-nil sink.
type MultiSink []EventSink

func (m MultiSink) Publish(event models.Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(event)
		}
	}
}

type nopSink struct{}

func (nopSink) Publish(models.Event) {}

func newEvent(kind models.EventKind, alias, address, detail string) models.Event {
	return models.Event{
		At:      time.Now(),
		Kind:    kind,
		Alias:   alias,
		Address: address,
		Detail:  detail,
	}
}
