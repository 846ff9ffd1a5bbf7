package backend

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"podcast-listener/internal/transcript"
)

// maxEventSize bounds one server-sent line. A long chunk carries its whole
// transcript and segment list in a single data line.
const maxEventSize = 4 * 1024 * 1024

// EventStream reads transcription events from a server-sent event body.
type EventStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	closeOnce sync.Once
}

// NewEventStream wraps body. The stream owns body and closes it on Close.
func NewEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	return &EventStream{body: body, scanner: scanner}
}

// Next returns the next meaningful event. Comment lines, non-data fields,
// unparseable payloads and unrecognised events are skipped. It returns io.EOF
// when the body ends.
func (s *EventStream) Next() (transcript.Event, error) {
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		ev, err := transcript.ParseEvent([]byte(payload))
		if err != nil || ev.Kind == transcript.EventIgnored {
			continue
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return transcript.Event{}, fmt.Errorf("read event: %w", err)
	}
	return transcript.Event{}, io.EOF
}

// Close releases the connection. Safe to call more than once and from another
// goroutine than the one blocked in Next.
func (s *EventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
