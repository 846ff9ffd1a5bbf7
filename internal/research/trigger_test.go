package research

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"podcast-listener/internal/loop"
	"podcast-listener/internal/platform/logger"
	"podcast-listener/internal/transcript"
)

type fakeExtractor struct {
	calls  []string
	result []string
	err    error
}

func (f *fakeExtractor) ExtractNotableContext(ctx context.Context, text string) ([]string, error) {
	f.calls = append(f.calls, text)
	return f.result, f.err
}

func newTestTrigger(t *testing.T) (*Trigger, *Queue, *fakeExtractor, *loop.Stepper) {
	t.Helper()
	st := &loop.Stepper{}
	q := NewQueue(&fakeVerifier{fail: map[string]error{}}, st, Options{Logger: logger.Discard()})
	ex := &fakeExtractor{}
	return NewTrigger(ex, q, st, Options{Logger: logger.Discard()}), q, ex, st
}

func chunkAt(index int, start, end float64, text string) transcript.Chunk {
	return transcript.Chunk{
		Index: index,
		Text:  text,
		Segments: []transcript.Segment{
			{Start: start, End: start + 1, Text: "first"},
			{Start: end - 1, End: end, Text: "last"},
		},
	}
}

func TestTrigger_extracts_whole_chunk_text(t *testing.T) {
	tr, q, ex, st := newTestTrigger(t)
	ex.result = []string{"claim one", "claim two"}
	chunks := []transcript.Chunk{chunkAt(0, 0, 120, "full chunk text")}

	if !tr.OnTick(chunks, 3, true) {
		t.Fatal("expected extraction to start")
	}
	if tr.LastExtracted() != 0 {
		t.Errorf("lastExtracted must be set before the call lands, got %v", tr.LastExtracted())
	}
	if tr.OnTick(chunks, 4, true) {
		t.Error("same chunk must not be extracted twice while outstanding")
	}

	st.Step()
	if len(ex.calls) != 1 || ex.calls[0] != "full chunk text" {
		t.Errorf("extractor calls = %v", ex.calls)
	}
	items := q.Items()
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Question != "claim one" || items[1].Question != "claim two" {
		t.Errorf("result order not preserved: %+v", items)
	}
	for i, it := range items {
		if it.Origin != OriginNotable || it.Timestamp != 0 {
			t.Errorf("item %d = %+v", i, it)
		}
	}
	if items[0].ID == items[1].ID {
		t.Error("item ids must be distinct")
	}
}

func TestTrigger_debounce_by_chunk_start(t *testing.T) {
	t.Run("within_one_second_suppressed", func(t *testing.T) {
		tr, _, _, st := newTestTrigger(t)
		tr.lastExtracted = 41.5
		chunks := []transcript.Chunk{chunkAt(0, 42.0, 160, "x")}
		if tr.OnTick(chunks, 50, true) {
			t.Error("|42.0-41.5| < 1.0 must be suppressed")
		}
		if st.Len() != 0 {
			t.Error("no call expected")
		}
	})

	t.Run("one_second_or_more_proceeds", func(t *testing.T) {
		tr, _, _, _ := newTestTrigger(t)
		tr.lastExtracted = 40.0
		chunks := []transcript.Chunk{chunkAt(0, 42.0, 160, "x")}
		if !tr.OnTick(chunks, 50, true) {
			t.Error("|42.0-40.0| >= 1.0 must proceed")
		}
		if tr.LastExtracted() != 42.0 {
			t.Errorf("lastExtracted = %v", tr.LastExtracted())
		}
	})
}

func TestTrigger_requires_playing_and_active_chunk(t *testing.T) {
	tr, _, _, st := newTestTrigger(t)
	chunks := []transcript.Chunk{chunkAt(0, 0, 120, "x")}

	if tr.OnTick(chunks, 10, false) {
		t.Error("paused playback never extracts")
	}
	if tr.OnTick(nil, 10, true) {
		t.Error("no chunks, no extraction")
	}
	if tr.OnTick(chunks, 200, true) {
		t.Error("playhead outside every chunk, no extraction")
	}
	if st.Len() != 0 || !math.IsInf(tr.LastExtracted(), -1) {
		t.Error("nothing should have been recorded")
	}
}

func TestTrigger_failure_is_swallowed(t *testing.T) {
	tr, q, ex, st := newTestTrigger(t)
	ex.err = errors.New("502 bad gateway")
	chunks := []transcript.Chunk{chunkAt(0, 0, 120, "x")}

	tr.OnTick(chunks, 5, true)
	st.Drain()

	if q.Len() != 0 {
		t.Error("failed extraction produces no items")
	}
	if tr.LastExtracted() != 0 {
		t.Error("lastExtracted is not rolled back on failure")
	}
	if tr.OnTick(chunks, 6, true) {
		t.Error("the failed chunk stays handled")
	}
}

func TestTrigger_next_chunk_extracts(t *testing.T) {
	tr, _, ex, st := newTestTrigger(t)
	chunks := []transcript.Chunk{chunkAt(0, 0, 120, "a"), chunkAt(1, 120, 240, "b")}

	tr.OnTick(chunks, 5, true)
	tr.OnTick(chunks, 125, true)
	st.Drain()
	if len(ex.calls) != 2 || ex.calls[1] != "b" {
		t.Errorf("calls = %v", ex.calls)
	}
}

func TestTrigger_Reset_drops_in_flight_results(t *testing.T) {
	tr, q, ex, st := newTestTrigger(t)
	ex.result = []string{"stale"}
	chunks := []transcript.Chunk{chunkAt(0, 0, 120, "x")}

	tr.OnTick(chunks, 5, true)
	tr.Reset()
	st.Drain()

	if q.Len() != 0 {
		t.Error("results from before a reset must be dropped")
	}
	if !tr.OnTick(chunks, 5, true) {
		t.Error("after reset the same chunk can be extracted again")
	}
}

func TestNotableItems(t *testing.T) {
	items := NotableItems(42, []string{" a ", "", "b"})
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].ID != "notable-42.00-0" || items[1].ID != "notable-42.00-2" {
		t.Errorf("ids = %s, %s", items[0].ID, items[1].ID)
	}
	if items[0].Question != "a" || items[0].Status != StatusPending {
		t.Errorf("item = %+v", items[0])
	}
}

func TestManualItem(t *testing.T) {
	now := time.Unix(1700000000, 5)
	it, err := ManualItem("  is this true?  ", 93.5, now)
	if err != nil {
		t.Fatalf("ManualItem: %v", err)
	}
	if it.Origin != OriginManual || it.Timestamp != 93.5 || it.Question != "is this true?" {
		t.Errorf("item = %+v", it)
	}
	if it.ID != "manual-1700000000000000005" {
		t.Errorf("id = %s", it.ID)
	}
	if _, err := ManualItem("   ", 0, now); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("blank text err = %v", err)
	}
}
