package research

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"podcast-listener/internal/loop"
	"podcast-listener/internal/platform/metrics"
	"podcast-listener/internal/transcript"
)

// extractionDebounceSeconds: a chunk whose first segment starts this close to
// the last extracted start is treated as already handled.
const extractionDebounceSeconds = 1.0

// Extractor is the external notable-context extraction service.
type Extractor interface {
	ExtractNotableContext(ctx context.Context, transcript string) ([]string, error)
}

// Trigger extracts notable statements from the chunk under the playhead and
// appends them to a Queue. Must only be used from the session loop.
type Trigger struct {
	extractor Extractor
	queue     *Queue
	runner    loop.Runner
	log       *slog.Logger
	metrics   *metrics.Metrics

	lastExtracted float64
	epoch         uint64
}

// NewTrigger returns a Trigger that has not extracted anything yet.
func NewTrigger(extractor Extractor, queue *Queue, runner loop.Runner, opts Options) *Trigger {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Trigger{
		extractor:     extractor,
		queue:         queue,
		runner:        runner,
		log:           log,
		metrics:       opts.Metrics,
		lastExtracted: math.Inf(-1),
	}
}

// LastExtracted is the start time of the last chunk sent for extraction, or
// -Inf if none was.
func (t *Trigger) LastExtracted() float64 {
	return t.lastExtracted
}

// OnTick runs extraction for the active chunk if playback is running and that
// chunk was not handled already. It reports whether a call was started.
func (t *Trigger) OnTick(chunks []transcript.Chunk, currentTime float64, playing bool) bool {
	if !playing || len(chunks) == 0 {
		return false
	}
	chunk, ok := transcript.ActiveChunk(chunks, currentTime)
	if !ok {
		return false
	}
	chunkStart := chunk.Segments[0].Start
	if math.Abs(t.lastExtracted-chunkStart) < extractionDebounceSeconds {
		return false
	}

	// Set before the call lands so later ticks do not extract the same chunk.
	t.lastExtracted = chunkStart
	epoch := t.epoch
	text := chunk.Text

	t.log.Debug("extracting notable context", slog.Int("chunk_index", chunk.Index),
		slog.Float64("chunk_start", chunkStart))
	t.runner.Go(func(ctx context.Context) func() {
		statements, err := t.extractor.ExtractNotableContext(ctx, text)
		return func() { t.handleResult(epoch, chunkStart, statements, err) }
	})
	return true
}

func (t *Trigger) handleResult(epoch uint64, chunkStart float64, statements []string, err error) {
	if epoch != t.epoch {
		return
	}
	if err != nil {
		t.log.Warn("notable context extraction failed",
			slog.Float64("chunk_start", chunkStart),
			slog.String("error", fmt.Errorf("%w: %v", ErrExtraction, err).Error()))
		if t.metrics != nil {
			t.metrics.IncExtractionFailures()
		}
		return
	}

	items := NotableItems(chunkStart, statements)
	t.log.Info("notable statements extracted", slog.Float64("chunk_start", chunkStart),
		slog.Int("count", len(items)))
	if len(items) > 0 {
		t.queue.Append(items...)
	}
}

// Reset forgets the last extracted chunk and drops extraction results still in
// flight. Used when a new episode is loaded.
func (t *Trigger) Reset() {
	t.lastExtracted = math.Inf(-1)
	t.epoch++
}
