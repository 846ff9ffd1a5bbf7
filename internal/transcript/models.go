package transcript

import "sort"

// Segment is a transcribed interval. Start and End are seconds from the start
// of the episode, not of the chunk.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Chunk is one fixed-duration unit of audio and its transcription result.
// Index is 0-based; the stream reports it 1-based.
type Chunk struct {
	Index       int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments"`
	Error       string    `json:"error,omitempty"`
}

// ChunkInfo describes how a media file is split into chunks.
type ChunkInfo struct {
	TotalChunks          int     `json:"total_chunks"`
	ChunkDurationSeconds float64 `json:"chunk_duration_seconds"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
}

// RangeRequest asks for the inclusive, 0-based chunk range [Start, End] of a file.
type RangeRequest struct {
	FileID string
	Start  int
	End    int
}

// State is the transcription state of one playback session. It is owned by a
// Scheduler and only mutated through it.
type State struct {
	Chunks               []Chunk
	Transcribed          map[int]struct{}
	LastTranscribedIndex int
	TotalChunks          int
	ChunkDurationSeconds float64
	IsStreaming          bool
	Err                  error
	Completed            bool
}

func newState() State {
	return State{
		Transcribed:          make(map[int]struct{}),
		LastTranscribedIndex: -1,
	}
}

// Has reports whether chunk index i has been transcribed.
func (s *State) Has(i int) bool {
	_, ok := s.Transcribed[i]
	return ok
}

// Snapshot is a copy of State safe to hand to other goroutines and encode.
type Snapshot struct {
	FileID               string  `json:"file_id,omitempty"`
	Chunks               []Chunk `json:"chunks"`
	TranscribedIndices   []int   `json:"transcribed_indices"`
	LastTranscribedIndex int     `json:"last_transcribed_index"`
	TotalChunks          int     `json:"total_chunks"`
	ChunkDurationSeconds float64 `json:"chunk_duration_seconds"`
	IsStreaming          bool    `json:"is_streaming"`
	Error                string  `json:"error,omitempty"`
	ErrorKind            string  `json:"error_kind,omitempty"`
	Completed            bool    `json:"completed"`
}

func (s *State) snapshot(fileID string) Snapshot {
	indices := make([]int, 0, len(s.Transcribed))
	for i := range s.Transcribed {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	chunks := make([]Chunk, len(s.Chunks))
	copy(chunks, s.Chunks)

	snap := Snapshot{
		FileID:               fileID,
		Chunks:               chunks,
		TranscribedIndices:   indices,
		LastTranscribedIndex: s.LastTranscribedIndex,
		TotalChunks:          s.TotalChunks,
		ChunkDurationSeconds: s.ChunkDurationSeconds,
		IsStreaming:          s.IsStreaming,
		Completed:            s.Completed,
	}
	if s.Err != nil {
		snap.Error = s.Err.Error()
		snap.ErrorKind = ErrorKind(s.Err)
	}
	return snap
}
