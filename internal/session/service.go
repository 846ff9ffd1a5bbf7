package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Service creates sessions and routes operations to them by ID.
type Service struct {
	repo    Repository
	backend Backend
	opts    Options
	log     *slog.Logger
}

// NewService returns a Service that registers sessions in repo and gives each
// one backend as its collaborator.
func NewService(repo Repository, backend Backend, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, backend: backend, opts: opts, log: log}
}

// Create starts a new session.
func (s *Service) Create() (*Session, error) {
	sess := New(ID(uuid.NewString()), s.backend, s.opts)
	if err := s.repo.Add(sess); err != nil {
		sess.Close()
		return nil, err
	}
	s.log.Info("session created", slog.String("session_id", string(sess.ID())))
	return sess, nil
}

// Get returns the session with the given ID or ErrNotFound.
func (s *Service) Get(id ID) (*Session, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// LoadEpisode resets the session's transcript and starts on fileID.
func (s *Service) LoadEpisode(id ID, fileID string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	return sess.LoadEpisode(fileID)
}

// Tick forwards a playback position to the session.
func (s *Service) Tick(id ID, currentTime float64, playing bool) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	return sess.Tick(currentTime, playing)
}

// SubmitManual queues a listener-selected statement and returns its item ID.
func (s *Service) SubmitManual(id ID, text string) (string, error) {
	sess, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return sess.SubmitManual(text)
}

// Snapshot returns the session's current state.
func (s *Service) Snapshot(id ID) (Snapshot, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot()
}

// Close unregisters and closes the session.
func (s *Service) Close(id ID) error {
	sess, ok := s.repo.Remove(id)
	if !ok {
		return ErrNotFound
	}
	sess.Close()
	return nil
}

// CloseAll closes every session concurrently. It returns ctx's error if some
// sessions have not finished closing when ctx is done.
func (s *Service) CloseAll(ctx context.Context) error {
	sessions := s.repo.RemoveAll()
	if len(sessions) == 0 {
		return nil
	}
	s.log.Info("closing sessions", slog.Int("count", len(sessions)))

	g, ctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			done := make(chan struct{})
			go func() {
				sess.Close()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// ActiveSessionCount is the number of open sessions.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveSessionCount()
}
