package transcript

// Key identifies a segment by its owning chunk and position in that chunk.
// Consumers compare keys to detect that the active segment changed.
type Key struct {
	ChunkIndex   int `json:"chunk_index"`
	SegmentIndex int `json:"segment_index"`
}

// Entry is a segment tagged with where it came from.
type Entry struct {
	Key
	Segment Segment `json:"segment"`
}

// Window is what playback position currentTime reveals of the transcript.
type Window struct {
	CurrentTime float64 `json:"current_time"`
	// Visible holds every segment that has started, in chunk arrival order.
	Visible []Entry `json:"visible"`
	// Active is the segment under the playhead, or the last visible one when
	// the playhead sits in a gap. Nil when nothing is visible.
	Active *Entry `json:"active,omitempty"`
	// ActiveChunk is the chunk whose segment span contains the playhead. It
	// can differ from Active's chunk during gaps.
	ActiveChunk *Chunk `json:"-"`
}

// ActiveKey returns the active entry's key and whether there is one.
func (w Window) ActiveKey() (Key, bool) {
	if w.Active == nil {
		return Key{}, false
	}
	return w.Active.Key, true
}

// Locate maps the transcript onto the playback position.
func Locate(chunks []Chunk, currentTime float64) Window {
	w := Window{CurrentTime: currentTime, Visible: []Entry{}}

	activePos := -1
	for _, c := range chunks {
		for i, seg := range c.Segments {
			if seg.Start > currentTime {
				continue
			}
			w.Visible = append(w.Visible, Entry{
				Key:     Key{ChunkIndex: c.Index, SegmentIndex: i},
				Segment: seg,
			})
			if activePos == -1 && currentTime < seg.End {
				activePos = len(w.Visible) - 1
			}
		}
	}

	if len(w.Visible) > 0 {
		if activePos == -1 {
			activePos = len(w.Visible) - 1
		}
		active := w.Visible[activePos]
		w.Active = &active
	}

	if c, ok := ActiveChunk(chunks, currentTime); ok {
		w.ActiveChunk = &c
	}
	return w
}

// ActiveChunk returns the first chunk, in arrival order, whose span from its
// first segment's start to its last segment's end contains currentTime.
// Chunks without segments never match.
func ActiveChunk(chunks []Chunk, currentTime float64) (Chunk, bool) {
	for _, c := range chunks {
		if len(c.Segments) == 0 {
			continue
		}
		first, last := c.Segments[0], c.Segments[len(c.Segments)-1]
		if first.Start <= currentTime && currentTime <= last.End {
			return c, true
		}
	}
	return Chunk{}, false
}
