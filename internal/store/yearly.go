package store

import (
	"context"
	"fmt"
	"time"
)

// YearCount is one calendar year's message split for a session.
type YearCount struct {
	Year     int   `json:"year"`
	Total    int64 `json:"total"`
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
}

// GetYearlyMessageStats groups a session's messages by calendar year (local
// time), ascending, with one aggregate query.
func (s *ChatStore) GetYearlyMessageStats(ctx context.Context, sessionID string) ([]YearCount, error) {
	db, err := s.handle.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT CAST(strftime('%Y', create_time, 'unixepoch', 'localtime') AS INTEGER) AS y,
		       COUNT(*), COALESCE(SUM(is_sender), 0)
		FROM all_message WHERE talker = ?
		GROUP BY y ORDER BY y ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("yearly stats: %w", err)
	}
	defer rows.Close()

	var counts []YearCount
	for rows.Next() {
		var yc YearCount
		if err := rows.Scan(&yc.Year, &yc.Total, &yc.Sent); err != nil {
			return nil, err
		}
		yc.Received = yc.Total - yc.Sent
		counts = append(counts, yc)
	}
	return counts, rows.Err()
}

// GetYearlyTypeBreakdown returns, per calendar year, the message count by
// type label for a session.
func (s *ChatStore) GetYearlyTypeBreakdown(ctx context.Context, sessionID string) (map[int]map[string]int64, error) {
	db, err := s.handle.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT CAST(strftime('%Y', create_time, 'unixepoch', 'localtime') AS INTEGER) AS y,
		       type, COUNT(*)
		FROM all_message WHERE talker = ?
		GROUP BY y, type`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("yearly type breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[int]map[string]int64)
	for rows.Next() {
		var year, msgType int
		var count int64
		if err := rows.Scan(&year, &msgType, &count); err != nil {
			return nil, err
		}
		if breakdown[year] == nil {
			breakdown[year] = make(map[string]int64)
		}
		breakdown[year][MessageType(msgType).Label()] += count
	}
	return breakdown, rows.Err()
}

// StreamTextMessages streams a session's text messages in storage order,
// optionally restricted to one calendar year, without holding them all in
// memory. fn returning an error stops the stream.
func (s *ChatStore) StreamTextMessages(ctx context.Context, sessionID string, year *int, fn func(m Message) error) error {
	db, err := s.handle.DB()
	if err != nil {
		return err
	}

	query := `SELECT sender, is_sender, create_time, content
		FROM all_message WHERE talker = ? AND type = ?`
	args := []any{sessionID, int(TypeText)}
	if year != nil {
		start, end := yearBounds(*year)
		query += " AND create_time >= ? AND create_time < ?"
		args = append(args, start, end)
	}
	query += " ORDER BY create_time ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stream text messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		var isSender int
		var ts int64
		if err := rows.Scan(&msg.Sender, &isSender, &ts, &msg.Content); err != nil {
			return err
		}
		msg.IsSender = isSender != 0
		msg.Type = TypeText
		msg.Time = time.Unix(ts, 0)
		if err := fn(msg); err != nil {
			return err
		}
	}
	return rows.Err()
}
