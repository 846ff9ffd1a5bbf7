package research

import "errors"

var (
	// ErrExtraction is a failed notable-context extraction call. It never
	// leaves persistent state behind.
	ErrExtraction = errors.New("notable context extraction failed")

	// ErrResearch is a failed verification call, scoped to one item.
	ErrResearch = errors.New("research failed")

	// ErrEmptyQuestion rejects a manual selection with no text.
	ErrEmptyQuestion = errors.New("question is empty")
)
