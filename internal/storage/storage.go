// Package storage persists the interaction log: one record per answered or
// failed chat message.
package storage

import "time"

// Event is one chat exchange. AssistantResponse is empty when the pipeline
// failed before producing an answer.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	SessionID         string    `json:"session_id"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response,omitempty"`
	Intent            string    `json:"intent,omitempty"`
	File              string    `json:"file,omitempty"`
	Failed            bool      `json:"failed,omitempty"`
}

// Recorder abstracts persistence of interaction events.
// LoadInteractions returns events in the order they were appended.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}

// Nop discards every event.
type Nop struct{}

func (Nop) AppendInteraction(Event) error      { return nil }
func (Nop) LoadInteractions() ([]Event, error) { return nil, nil }
