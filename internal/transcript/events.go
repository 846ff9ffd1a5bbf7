package transcript

import (
	"encoding/json"
	"fmt"
)

// EventKind classifies one inbound stream event.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventChunk
	EventCompleted
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	default:
		return "ignored"
	}
}

// Event is one parsed chunk-stream event.
type Event struct {
	Kind    EventKind
	Chunk   Chunk  // EventChunk
	Message string // EventError
}

// wireEvent matches the JSON carried by each server-sent event.
type wireEvent struct {
	ChunkIndex  *int      `json:"chunk_index"`
	TotalChunks *int      `json:"total_chunks"`
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments"`
	Error       *string   `json:"error"`
	Status      string    `json:"status"`
}

const statusCompleted = "completed"

// ParseEvent decodes and classifies one event payload. An error field wins over
// everything else, then a completed status, then a chunk result. Payloads that
// are none of these are EventIgnored.
func ParseEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decode stream event: %w", err)
	}

	switch {
	case w.Error != nil:
		msg := *w.Error
		if msg == "" {
			msg = "unknown error"
		}
		if w.ChunkIndex != nil {
			msg = fmt.Sprintf("chunk %d: %s", *w.ChunkIndex, msg)
		}
		return Event{Kind: EventError, Message: msg}, nil
	case w.Status == statusCompleted:
		return Event{Kind: EventCompleted}, nil
	case w.ChunkIndex != nil && w.TotalChunks != nil:
		if *w.ChunkIndex < 1 {
			return Event{}, fmt.Errorf("chunk_index %d out of range", *w.ChunkIndex)
		}
		segments := w.Segments
		if segments == nil {
			segments = []Segment{}
		}
		return Event{
			Kind: EventChunk,
			Chunk: Chunk{
				Index:       *w.ChunkIndex - 1,
				TotalChunks: *w.TotalChunks,
				Text:        w.Text,
				Segments:    segments,
			},
		}, nil
	default:
		return Event{Kind: EventIgnored}, nil
	}
}
