package analytics

import "time"

// ChatStatistics is the whole-store aggregate shown on the overview surface.
type ChatStatistics struct {
	TotalMessages int64            `json:"totalMessages"`
	ActiveDays    int              `json:"activeDays"`
	AveragePerDay float64          `json:"averagePerDay"`
	ByType        map[string]int64 `json:"byType"`
	FirstMessage  time.Time        `json:"firstMessage"`
	LastMessage   time.Time        `json:"lastMessage"`
	SpanDays      int              `json:"spanDays"`
}

// ContactRanking is the per-contact aggregate. Rankings are ordered by
// message count descending; contacts with equal counts keep their session
// order.
type ContactRanking struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName,omitempty"`
	MessageCount int64     `json:"messageCount"`
	Sent         int64     `json:"sent"`
	Received     int64     `json:"received"`
	LastMessage  time.Time `json:"lastMessage"`
}

// Diagnostics counts what the full-store scan encountered. A failed contact
// is skipped, never fatal.
type Diagnostics struct {
	Scanned int `json:"scanned"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Result is what LoadOrCompute hands back.
type Result struct {
	Stats       ChatStatistics   `json:"stats"`
	Rankings    []ContactRanking `json:"rankings"`
	Diagnostics Diagnostics      `json:"diagnostics"`
	FromCache   bool             `json:"-"`
}
