package research

// Status is where a research item is in its lifecycle.
type Status string

const (
	StatusPending     Status = "pending"
	StatusResearching Status = "researching"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether s -> to is a legal lifecycle edge:
// pending -> researching -> completed | error.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusResearching
	case StatusResearching:
		return to == StatusCompleted || to == StatusError
	default:
		return false
	}
}

// Origin records what created an item.
type Origin string

const (
	OriginNotable Origin = "notable"
	OriginManual  Origin = "manual"
)

// VerdictKind is the verification outcome for a statement.
type VerdictKind string

const (
	VerdictVerified     VerdictKind = "verified"
	VerdictRefuted      VerdictKind = "refuted"
	VerdictPartial      VerdictKind = "partial"
	VerdictInconclusive VerdictKind = "inconclusive"
)

// SourceType is the kind of source a verdict cites.
type SourceType string

const (
	SourceArxiv       SourceType = "arxiv"
	SourceWeb         SourceType = "web"
	SourceLegislation SourceType = "legislation"
)

// SourceLink is one cited source.
type SourceLink struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Type      SourceType `json:"type"`
	Relevance string     `json:"relevance"`
}

// Verdict is the verification service's answer for one statement.
type Verdict struct {
	Statement  string       `json:"statement"`
	Verdict    VerdictKind  `json:"verdict"`
	Confidence float64      `json:"confidence"`
	Summary    string       `json:"summary"`
	Reasoning  string       `json:"reasoning"`
	Sources    []SourceLink `json:"sources"`
}

// Normalize clamps confidence to [0, 1] and maps unknown verdicts to
// inconclusive and unknown source types to web.
func (v Verdict) Normalize() Verdict {
	switch v.Verdict {
	case VerdictVerified, VerdictRefuted, VerdictPartial, VerdictInconclusive:
	default:
		v.Verdict = VerdictInconclusive
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	sources := make([]SourceLink, 0, len(v.Sources))
	for _, s := range v.Sources {
		switch s.Type {
		case SourceArxiv, SourceWeb, SourceLegislation:
		default:
			s.Type = SourceWeb
		}
		sources = append(sources, s)
	}
	v.Sources = sources
	return v
}

// Item is one statement queued for verification.
type Item struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Origin    Origin   `json:"origin"`
	Timestamp float64  `json:"timestamp"`
	Status    Status   `json:"status"`
	Results   *Verdict `json:"results,omitempty"`
	Error     string   `json:"error,omitempty"`
}
