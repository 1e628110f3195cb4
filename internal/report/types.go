package report

import "time"

// SchemaVersion tags persisted report payloads; cached payloads from an older
// schema are ignored.
const SchemaVersion = 1

// EmojiStat is one emoji with its usage count. Image carries inline asset
// bytes for display and is stripped before the payload is cached.
type EmojiStat struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Image []byte `json:"image,omitempty"`
}

// YearSection is the report slice for one calendar year.
type YearSection struct {
	Year      int              `json:"year"`
	Total     int64            `json:"total"`
	Sent      int64            `json:"sent"`
	Received  int64            `json:"received"`
	ByType    map[string]int64 `json:"byType"`
	EmojiSelf []EmojiStat      `json:"emojiSelf,omitempty"`
	EmojiPeer []EmojiStat      `json:"emojiPeer,omitempty"`
}

// DualReport is the full two-party report payload.
type DualReport struct {
	SchemaVersion    int           `json:"schemaVersion"`
	Counterparty     string        `json:"counterparty"`
	CounterpartyName string        `json:"counterpartyName,omitempty"`
	Year             *int          `json:"year,omitempty"` // nil means all time
	Years            []YearSection `json:"years"`
	FirstContact     time.Time     `json:"firstContact"`
	LastContact      time.Time     `json:"lastContact"`
	ActiveDays       int           `json:"activeDays"`
	LongestStreak    int           `json:"longestStreakDays"`
	CurrentStreak    int           `json:"currentStreakDays"`
	TopEmojiSelf     *EmojiStat    `json:"topEmojiSelf,omitempty"`
	TopEmojiPeer     *EmojiStat    `json:"topEmojiPeer,omitempty"`
	GeneratedAt      time.Time     `json:"generatedAt"`
}

// StripAssets returns a copy of the report with every inline asset removed.
// The caller-facing payload keeps its assets; only the cached copy is
// stripped.
func (r *DualReport) StripAssets() *DualReport {
	out := *r
	out.Years = make([]YearSection, len(r.Years))
	for i, y := range r.Years {
		y.EmojiSelf = stripStats(y.EmojiSelf)
		y.EmojiPeer = stripStats(y.EmojiPeer)
		out.Years[i] = y
	}
	out.TopEmojiSelf = stripStat(r.TopEmojiSelf)
	out.TopEmojiPeer = stripStat(r.TopEmojiPeer)
	return &out
}

func stripStats(in []EmojiStat) []EmojiStat {
	if in == nil {
		return nil
	}
	out := make([]EmojiStat, len(in))
	for i, s := range in {
		s.Image = nil
		out[i] = s
	}
	return out
}

func stripStat(in *EmojiStat) *EmojiStat {
	if in == nil {
		return nil
	}
	s := *in
	s.Image = nil
	return &s
}

// EventType tags the one outbound worker event union.
type EventType string

const (
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is the single message shape crossing the worker boundary. A job
// emits any number of progress events followed by exactly one done or error
// event.
type Event struct {
	Type     EventType   `json:"type"`
	Task     string      `json:"taskName,omitempty"`
	Status   string      `json:"status,omitempty"`
	Progress float64     `json:"progress,omitempty"`
	Data     *DualReport `json:"data,omitempty"`
	Message  string      `json:"message,omitempty"`
}
