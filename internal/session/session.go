// Package session ties the transcription scheduler, the research queue and the
// extraction trigger of one playback session to a single event loop, and
// exposes sessions over HTTP.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"podcast-listener/internal/loop"
	"podcast-listener/internal/platform/metrics"
	"podcast-listener/internal/research"
	"podcast-listener/internal/transcript"
)

// DefaultEventBuffer is the default size of a session loop's inbox.
const DefaultEventBuffer = 64

// ErrClosed is returned when operating on a session that has been closed.
var ErrClosed = errors.New("session closed")

// Backend is every external collaborator a session talks to.
type Backend interface {
	transcript.MetadataResolver
	transcript.StreamOpener
	research.Extractor
	research.Verifier
}

// Options configures new sessions. Logger, Metrics and Now may be nil.
type Options struct {
	Duplicates  transcript.DuplicatePolicy
	EventBuffer int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Session is one listener's playback session. All of its state lives on its
// loop; the exported methods post work there and are safe for concurrent use.
type Session struct {
	id   ID
	log  *slog.Logger
	now  func() time.Time
	loop *loop.Loop

	scheduler *transcript.Scheduler
	queue     *research.Queue
	trigger   *research.Trigger

	// Loop-owned.
	currentTime float64
	playing     bool
	watchers    map[int]chan Snapshot
	nextWatcher int

	closeOnce sync.Once
}

// New starts a session with an empty transcript and research queue.
func New(id ID, backend Backend, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("session_id", string(id)))
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	s := &Session{
		id:       id,
		log:      log,
		now:      now,
		watchers: make(map[int]chan Snapshot),
	}
	s.loop = loop.New(buffer, s.publish)
	s.scheduler = transcript.NewScheduler(backend, backend, s.loop, transcript.Options{
		Duplicates: opts.Duplicates,
		Logger:     log,
		Metrics:    opts.Metrics,
	})
	ropts := research.Options{Logger: log, Metrics: opts.Metrics}
	s.queue = research.NewQueue(backend, s.loop, ropts)
	s.trigger = research.NewTrigger(backend, s.queue, s.loop, ropts)
	return s
}

// ID returns the session ID.
func (s *Session) ID() ID {
	return s.id
}

// Closed reports whether Close has stopped the session loop.
func (s *Session) Closed() bool {
	select {
	case <-s.loop.Done():
		return true
	default:
		return false
	}
}

// LoadEpisode discards the current transcript, closing any open stream, and
// starts transcribing fileID from its first chunks. Research items survive.
func (s *Session) LoadEpisode(fileID string) error {
	var err error
	if cerr := s.loop.Call(func() {
		s.scheduler.Reset()
		s.trigger.Reset()
		s.currentTime, s.playing = 0, false
		err = s.scheduler.Initialize(fileID)
	}); cerr != nil {
		return ErrClosed
	}
	if err == nil {
		s.log.Info("episode loaded", slog.String("file_id", fileID))
	}
	return err
}

// Tick reports the playback position. It returns once the tick is queued.
func (s *Session) Tick(currentTime float64, playing bool) error {
	if err := s.loop.Post(func() {
		s.currentTime, s.playing = currentTime, playing
		s.scheduler.OnPlaybackTick(currentTime)
		s.trigger.OnTick(s.scheduler.State().Chunks, currentTime, playing)
	}); err != nil {
		return ErrClosed
	}
	return nil
}

// SubmitManual queues text the listener selected for verification, stamped
// with the last reported playback position. It returns the new item's ID.
func (s *Session) SubmitManual(text string) (string, error) {
	var (
		id  string
		err error
	)
	if cerr := s.loop.Call(func() {
		var item research.Item
		item, err = research.ManualItem(text, s.currentTime, s.now())
		if err != nil {
			return
		}
		id = item.ID
		s.queue.Append(item)
	}); cerr != nil {
		return "", ErrClosed
	}
	return id, err
}

// Snapshot returns the current state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	if err := s.loop.Call(func() {
		snap = s.snapshot()
	}); err != nil {
		return Snapshot{}, ErrClosed
	}
	return snap, nil
}

// Watch subscribes to snapshots. The channel holds the latest snapshot only and
// receives one after every loop message. It is closed by cancel or when the
// session closes.
func (s *Session) Watch() (<-chan Snapshot, func(), error) {
	ch := make(chan Snapshot, 1)
	var id int
	if err := s.loop.Call(func() {
		id = s.nextWatcher
		s.nextWatcher++
		s.watchers[id] = ch
	}); err != nil {
		return nil, nil, ErrClosed
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = s.loop.Post(func() {
				if c, ok := s.watchers[id]; ok {
					delete(s.watchers, id)
					close(c)
				}
			})
		})
	}
	return ch, cancel, nil
}

// Close drops the open stream, stops the loop and waits for outstanding
// backend calls to return. Watchers' channels are closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.loop.Call(func() {
			s.scheduler.Reset()
			s.trigger.Reset()
		})
		s.loop.Close()
		s.loop.Wait()

		// The loop has exited; nothing else touches watchers now.
		for id, ch := range s.watchers {
			delete(s.watchers, id)
			close(ch)
		}
		s.log.Info("session closed")
	})
}

func (s *Session) snapshot() Snapshot {
	st := s.scheduler.State()
	return Snapshot{
		ID:           s.id,
		Transcript:   s.scheduler.Snapshot(),
		Window:       transcript.Locate(st.Chunks, s.currentTime),
		Playing:      s.playing,
		Research:     s.queue.Items(),
		ResearchBusy: s.queue.Busy(),
	}
}

// publish runs on the loop after every message.
func (s *Session) publish() {
	if len(s.watchers) == 0 {
		return
	}
	snap := s.snapshot()
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
