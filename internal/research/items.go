package research

import (
	"fmt"
	"strings"
	"time"
)

// NotableItems builds pending items for the statements extracted from the
// chunk starting at chunkStart, preserving their order. Blank statements are
// skipped but still consume an ordinal so IDs stay stable.
func NotableItems(chunkStart float64, statements []string) []Item {
	items := make([]Item, 0, len(statements))
	for i, s := range statements {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		items = append(items, Item{
			ID:        fmt.Sprintf("notable-%.2f-%d", chunkStart, i),
			Question:  s,
			Origin:    OriginNotable,
			Timestamp: chunkStart,
			Status:    StatusPending,
		})
	}
	return items
}

// ManualItem builds a pending item for text the listener selected at playback
// position currentTime.
func ManualItem(text string, currentTime float64, now time.Time) (Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Item{}, ErrEmptyQuestion
	}
	return Item{
		ID:        fmt.Sprintf("manual-%d", now.UnixNano()),
		Question:  text,
		Origin:    OriginManual,
		Timestamp: currentTime,
		Status:    StatusPending,
	}, nil
}
