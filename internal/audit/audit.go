// Package audit appends coordination events to the store's immutable log.
// Every state-mutating action in the substrate records an event here; the
// log is the inspectable trail carried by escalated and rejected tasks.
package audit

import (
	"encoding/json"

	"github.com/crewd-dev/crewd/internal/store"
)

// Writer appends events on behalf of a named actor.
type Writer struct {
	store *store.Store
}

// NewWriter creates an event writer.
func NewWriter(s *store.Store) *Writer {
	return &Writer{store: s}
}

// Record appends one event. The payload is JSON-encoded; marshal failures
// degrade to an empty payload rather than losing the event itself.
func (w *Writer) Record(actor, eventType, taskID string, payload interface{}) (int64, error) {
	var body string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			body = string(data)
		}
	}
	return w.store.AppendEvent(actor, eventType, taskID, body)
}
