package transcript

import "errors"

var (
	// ErrMetadata is the chunk-info lookup failing.
	ErrMetadata = errors.New("chunk metadata lookup failed")

	// ErrStream is an explicit error payload on the transcription stream.
	ErrStream = errors.New("transcription stream error")

	// ErrConnection is the stream transport closing or failing without a
	// terminal event.
	ErrConnection = errors.New("transcription connection failed")

	// ErrInitialized is returned by Initialize when chunk metadata is already
	// known, being resolved, or a stream is open.
	ErrInitialized = errors.New("scheduler already initialized")
)

// ErrorKind names the transcription error class of err: "metadata", "stream",
// "connection", or "" when err is not one of them.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMetadata):
		return "metadata"
	case errors.Is(err, ErrStream):
		return "stream"
	case errors.Is(err, ErrConnection):
		return "connection"
	default:
		return ""
	}
}
