package session

import (
	"podcast-listener/internal/research"
	"podcast-listener/internal/transcript"
)

// ID uniquely identifies a listening session.
type ID string

// Snapshot is everything a display needs to render a session at one instant.
// It is built on the session loop and safe to hand to other goroutines.
type Snapshot struct {
	ID         ID                  `json:"id"`
	Transcript transcript.Snapshot `json:"transcript"`
	// Window is the transcript mapped onto the last reported playback position.
	Window       transcript.Window `json:"window"`
	Playing      bool              `json:"playing"`
	Research     []research.Item   `json:"research"`
	ResearchBusy bool              `json:"research_busy"`
}

// tickRequest is the body of POST /sessions/{id}/tick.
type tickRequest struct {
	CurrentTime *float64 `json:"current_time"`
	Playing     bool     `json:"playing"`
}

type episodeRequest struct {
	FileID string `json:"file_id"`
}

type researchRequest struct {
	Text string `json:"text"`
}

type idResponse struct {
	ID string `json:"id"`
}
