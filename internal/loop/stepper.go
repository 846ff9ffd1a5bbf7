package loop

import "context"

// maxDrainSteps bounds Drain so a stream fake that never terminates fails fast.
const maxDrainSteps = 10000

// Stepper is a Runner that queues work until told to run it. Each step runs one
// piece of work and then its continuation, synchronously, on the caller's
// goroutine. Tests use it to pin down the order of suspension points.
type Stepper struct {
	pending []func(ctx context.Context) func()
}

// Go implements Runner.
func (s *Stepper) Go(work func(ctx context.Context) func()) {
	s.pending = append(s.pending, work)
}

// Len reports queued work.
func (s *Stepper) Len() int {
	return len(s.pending)
}

// Step runs the oldest queued work and its continuation. It reports false when
// nothing was queued.
func (s *Stepper) Step() bool {
	if len(s.pending) == 0 {
		return false
	}
	work := s.pending[0]
	s.pending = s.pending[1:]
	if cont := work(context.Background()); cont != nil {
		cont()
	}
	return true
}

// Drain steps until nothing is queued and returns the number of steps taken.
func (s *Stepper) Drain() int {
	n := 0
	for n < maxDrainSteps && s.Step() {
		n++
	}
	return n
}

// Discard drops queued work without running it.
func (s *Stepper) Discard() {
	s.pending = nil
}
