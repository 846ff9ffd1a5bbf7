package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"podcast-listener/internal/loop"
	"podcast-listener/internal/platform/metrics"
)

// Verifier is the external verification service. It returns one verdict per
// statement, in order.
type Verifier interface {
	Verify(ctx context.Context, statements []string) ([]Verdict, error)
}

// Options configures the research components. Metrics may be nil.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Queue holds a session's research items in append order and verifies them
// one at a time. Like the Scheduler it must only be used from the session loop.
type Queue struct {
	verifier Verifier
	runner   loop.Runner
	log      *slog.Logger
	metrics  *metrics.Metrics

	items []*Item
	busy  bool
}

// NewQueue returns an empty, idle queue.
func NewQueue(verifier Verifier, runner loop.Runner, opts Options) *Queue {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		verifier: verifier,
		runner:   runner,
		log:      log,
		metrics:  opts.Metrics,
	}
}

// Append adds items to the end of the queue and wakes the worker. Items are
// stored as pending regardless of the status they carry.
func (q *Queue) Append(items ...Item) {
	for i := range items {
		it := items[i]
		it.Status = StatusPending
		it.Results = nil
		it.Error = ""
		q.items = append(q.items, &it)
		if q.metrics != nil {
			q.metrics.IncResearchEnqueued(string(it.Origin))
		}
		q.log.Debug("research item queued", slog.String("id", it.ID), slog.String("origin", string(it.Origin)))
	}
	q.work()
}

// Busy reports whether a verification call is in flight.
func (q *Queue) Busy() bool {
	return q.busy
}

// Len is the number of items ever appended.
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns a copy of every item in append order.
func (q *Queue) Items() []Item {
	out := make([]Item, len(q.items))
	for i, it := range q.items {
		out[i] = *it
		if it.Results != nil {
			v := *it.Results
			out[i].Results = &v
		}
	}
	return out
}

// work starts the first pending item unless a call is already in flight.
func (q *Queue) work() {
	if q.busy {
		return
	}
	pos := -1
	for i, it := range q.items {
		if it.Status == StatusPending {
			pos = i
			break
		}
	}
	if pos == -1 {
		return
	}

	item := q.items[pos]
	q.busy = true
	q.advance(item, StatusResearching)
	question := item.Question

	q.log.Info("researching", slog.String("id", item.ID), slog.String("question", question))
	q.runner.Go(func(ctx context.Context) func() {
		verdicts, err := q.verifier.Verify(ctx, []string{question})
		return func() { q.settle(pos, verdicts, err) }
	})
}

func (q *Queue) settle(pos int, verdicts []Verdict, err error) {
	item := q.items[pos]
	if err == nil && len(verdicts) == 0 {
		err = errors.New("no verdict returned")
	}

	if err != nil {
		item.Error = fmt.Errorf("%w: %v", ErrResearch, err).Error()
		q.advance(item, StatusError)
		q.log.Warn("research item failed", slog.String("id", item.ID), slog.String("error", item.Error))
	} else {
		v := verdicts[0].Normalize()
		item.Results = &v
		q.advance(item, StatusCompleted)
		q.log.Info("research item completed", slog.String("id", item.ID),
			slog.String("verdict", string(v.Verdict)), slog.Float64("confidence", v.Confidence))
	}
	if q.metrics != nil {
		q.metrics.IncResearchSettled(string(item.Status))
	}

	q.busy = false
	q.work()
}

func (q *Queue) advance(item *Item, to Status) {
	if !item.Status.CanTransition(to) {
		// Only reachable through a bug in this file; keep the item as is.
		q.log.Error("illegal research status transition", slog.String("id", item.ID),
			slog.String("from", string(item.Status)), slog.String("to", string(to)))
		return
	}
	item.Status = to
}
