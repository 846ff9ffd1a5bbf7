package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"podcast-listener/internal/loop"
	"podcast-listener/internal/platform/metrics"
)

const (
	// prefetchChunks is how many chunks Initialize requests up front.
	prefetchChunks = 2

	// progressiveFraction is how far into the last transcribed chunk playback
	// must be before the next chunk is requested.
	progressiveFraction = 0.5

	// seekJumpSeconds is the forward jump between two ticks that counts as a seek.
	seekJumpSeconds = 2.0
)

// MetadataResolver looks up the chunk layout of a media file.
type MetadataResolver interface {
	ChunkInfo(ctx context.Context, fileID string) (ChunkInfo, error)
}

// StreamOpener opens one chunk-stream connection for a range.
type StreamOpener interface {
	OpenStream(ctx context.Context, req RangeRequest) (EventStream, error)
}

// EventStream yields parsed events until a terminal event or an error. Next
// returns an error (io.EOF included) when the transport ends without one.
// Close unblocks a pending Next.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// DuplicatePolicy decides what happens to the chunk record when a chunk index
// is delivered twice. The transcribed index set is deduplicated either way.
type DuplicatePolicy string

const (
	// DuplicatesAppend keeps every delivered record.
	DuplicatesAppend DuplicatePolicy = "append"
	// DuplicatesReplace overwrites the earlier record for the same index.
	DuplicatesReplace DuplicatePolicy = "replace"
)

// ParseDuplicatePolicy maps a config value to a policy, defaulting to append.
func ParseDuplicatePolicy(s string) DuplicatePolicy {
	if DuplicatePolicy(s) == DuplicatesReplace {
		return DuplicatesReplace
	}
	return DuplicatesAppend
}

// Options configures a Scheduler. Metrics may be nil.
type Options struct {
	Duplicates DuplicatePolicy
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Scheduler decides when to request transcription work and folds stream
// events into the session's State. It is not safe for concurrent use: every
// method, and every continuation it hands to its Runner, must run on the
// session loop.
type Scheduler struct {
	resolver   MetadataResolver
	opener     StreamOpener
	runner     loop.Runner
	duplicates DuplicatePolicy
	log        *slog.Logger
	metrics    *metrics.Metrics

	fileID       string
	state        State
	previousTime float64
	resolving    bool

	// epoch changes on Reset; conn changes whenever a connection is opened or
	// released. Continuations carrying an old value are dropped.
	epoch  uint64
	conn   uint64
	stream EventStream
}

// NewScheduler returns a Scheduler in its initial, empty state.
func NewScheduler(resolver MetadataResolver, opener StreamOpener, runner loop.Runner, opts Options) *Scheduler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dup := opts.Duplicates
	if dup == "" {
		dup = DuplicatesAppend
	}
	return &Scheduler{
		resolver:   resolver,
		opener:     opener,
		runner:     runner,
		duplicates: dup,
		log:        log,
		metrics:    opts.Metrics,
		state:      newState(),
	}
}

// State returns the live state. Callers on the loop may read it but must not
// modify it.
func (s *Scheduler) State() *State {
	return &s.state
}

// Snapshot copies the current state.
func (s *Scheduler) Snapshot() Snapshot {
	return s.state.snapshot(s.fileID)
}

// FileID is the media file the scheduler was initialized with.
func (s *Scheduler) FileID() string {
	return s.fileID
}

// Initialize resolves chunk metadata for fileID and, once it arrives,
// prefetches the first chunks. A failed lookup is stored on the state and not
// retried.
func (s *Scheduler) Initialize(fileID string) error {
	if s.state.TotalChunks != 0 || s.state.IsStreaming || s.resolving {
		return ErrInitialized
	}
	s.fileID = fileID
	s.resolving = true
	epoch := s.epoch

	s.runner.Go(func(ctx context.Context) func() {
		info, err := s.resolver.ChunkInfo(ctx, fileID)
		return func() { s.handleMetadata(epoch, info, err) }
	})
	return nil
}

func (s *Scheduler) handleMetadata(epoch uint64, info ChunkInfo, err error) {
	if epoch != s.epoch {
		return
	}
	s.resolving = false

	if err == nil && (info.TotalChunks <= 0 || info.ChunkDurationSeconds <= 0) {
		err = fmt.Errorf("invalid chunk layout: %d chunks of %.1fs", info.TotalChunks, info.ChunkDurationSeconds)
	}
	if err != nil {
		s.setError(fmt.Errorf("%w: %v", ErrMetadata, err))
		return
	}

	s.state.TotalChunks = info.TotalChunks
	s.state.ChunkDurationSeconds = info.ChunkDurationSeconds
	s.log.Info("chunk metadata resolved",
		slog.String("file_id", s.fileID),
		slog.Int("total_chunks", info.TotalChunks),
		slog.Float64("chunk_duration_seconds", info.ChunkDurationSeconds))

	s.RequestRange(0, min(prefetchChunks-1, info.TotalChunks-1))
}

// RequestRange opens a stream for the inclusive range [start, end] unless one
// is already open or every index in the range is transcribed. It reports
// whether a connection was opened. A refused request is not remembered.
func (s *Scheduler) RequestRange(start, end int) bool {
	if s.state.IsStreaming {
		s.log.Debug("range request dropped, stream in flight",
			slog.Int("start", start), slog.Int("end", end))
		if s.metrics != nil {
			s.metrics.IncRequestsDropped()
		}
		return false
	}
	if start < 0 || end < start || (s.state.TotalChunks > 0 && end >= s.state.TotalChunks) {
		s.log.Warn("invalid chunk range", slog.Int("start", start), slog.Int("end", end),
			slog.Int("total_chunks", s.state.TotalChunks))
		return false
	}
	if s.covered(start, end) {
		return false
	}

	s.state.IsStreaming = true
	s.state.Err = nil
	s.conn++
	conn := s.conn
	req := RangeRequest{FileID: s.fileID, Start: start, End: end}

	s.log.Info("requesting chunks", slog.String("file_id", s.fileID),
		slog.Int("start", start), slog.Int("end", end))
	if s.metrics != nil {
		s.metrics.IncStreamsOpened()
	}

	s.runner.Go(func(ctx context.Context) func() {
		stream, err := s.opener.OpenStream(ctx, req)
		return func() { s.handleOpen(conn, stream, err) }
	})
	return true
}

func (s *Scheduler) covered(start, end int) bool {
	for i := start; i <= end; i++ {
		if !s.state.Has(i) {
			return false
		}
	}
	return true
}

func (s *Scheduler) handleOpen(conn uint64, stream EventStream, err error) {
	if conn != s.conn {
		if stream != nil {
			_ = stream.Close()
		}
		return
	}
	if err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrConnection, err))
		return
	}
	s.stream = stream
	s.readNext(conn, stream)
}

func (s *Scheduler) readNext(conn uint64, stream EventStream) {
	s.runner.Go(func(ctx context.Context) func() {
		ev, err := stream.Next()
		return func() { s.handleEvent(conn, ev, err) }
	})
}

// handleEvent applies one stream event. Events are handled strictly in arrival
// order because the next read is only issued after this one is applied.
func (s *Scheduler) handleEvent(conn uint64, ev Event, err error) {
	if conn != s.conn || !s.state.IsStreaming {
		return
	}
	if err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrConnection, err))
		return
	}

	switch ev.Kind {
	case EventChunk:
		s.applyChunk(ev.Chunk)
		s.readNext(conn, s.stream)
	case EventCompleted:
		s.release()
		if s.covered(0, s.state.TotalChunks-1) {
			s.state.Completed = true
			s.log.Info("transcription completed", slog.String("file_id", s.fileID))
		}
	case EventError:
		s.fail(fmt.Errorf("%w: %s", ErrStream, ev.Message))
	default:
		s.readNext(conn, s.stream)
	}
}

func (s *Scheduler) applyChunk(c Chunk) {
	if s.metrics != nil {
		s.metrics.IncChunksReceived()
	}

	replaced := false
	if s.duplicates == DuplicatesReplace && s.state.Has(c.Index) {
		for i := range s.state.Chunks {
			if s.state.Chunks[i].Index == c.Index {
				s.state.Chunks[i] = c
				replaced = true
				break
			}
		}
	}
	if !replaced {
		s.state.Chunks = append(s.state.Chunks, c)
	}

	s.state.Transcribed[c.Index] = struct{}{}
	if c.Index > s.state.LastTranscribedIndex {
		s.state.LastTranscribedIndex = c.Index
	}

	s.log.Debug("chunk received",
		slog.Int("chunk_index", c.Index),
		slog.Int("segments", len(c.Segments)),
		slog.Bool("replaced", replaced))
}

// fail records err, then releases the connection.
func (s *Scheduler) fail(err error) {
	s.setError(err)
	s.release()
}

func (s *Scheduler) setError(err error) {
	s.state.Err = err
	s.log.Error("transcription error", slog.String("file_id", s.fileID),
		slog.String("kind", ErrorKind(err)), slog.String("error", err.Error()))
	if s.metrics != nil {
		s.metrics.IncTranscriptionError(ErrorKind(err))
	}
}

func (s *Scheduler) release() {
	s.state.IsStreaming = false
	s.conn++
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
}

// OnPlaybackTick evaluates the seek and progressive triggers for the playback
// position currentTime. Both go through RequestRange, so at most one of them
// opens a connection; seek is evaluated first.
func (s *Scheduler) OnPlaybackTick(currentTime float64) {
	previous := s.previousTime
	s.previousTime = currentTime

	s.seekTrigger(previous, currentTime)
	s.progressiveTrigger(currentTime)
}

func (s *Scheduler) seekTrigger(previous, current float64) {
	if current-previous <= seekJumpSeconds {
		return
	}
	if s.state.TotalChunks == 0 || s.state.ChunkDurationSeconds <= 0 {
		return
	}
	target := int(math.Floor(current / s.state.ChunkDurationSeconds))
	if target < 0 || target >= s.state.TotalChunks || s.state.Has(target) {
		return
	}
	s.log.Debug("seek detected", slog.Float64("from", previous), slog.Float64("to", current),
		slog.Int("target_index", target))
	s.RequestRange(target, min(target+1, s.state.TotalChunks-1))
}

func (s *Scheduler) progressiveTrigger(current float64) {
	last := s.state.LastTranscribedIndex
	if last == -1 {
		return
	}
	if current < s.state.ChunkDurationSeconds*(float64(last)+progressiveFraction) {
		return
	}
	if last+1 >= s.state.TotalChunks {
		return
	}
	s.RequestRange(last+1, last+1)
}

// Reset closes any open stream and returns to the initial state. Outstanding
// metadata lookups and stream reads are discarded when they land.
func (s *Scheduler) Reset() {
	s.release()
	s.epoch++
	s.fileID = ""
	s.resolving = false
	s.previousTime = 0
	s.state = newState()
}
