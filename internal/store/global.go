package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// GlobalStats is the whole-store aggregate, computed without materializing
// message rows.
type GlobalStats struct {
	Total      int64            `json:"total"`
	ByType     map[string]int64 `json:"byType"`
	First      time.Time        `json:"first"`
	Last       time.Time        `json:"last"`
	ActiveDays int              `json:"activeDays"`
}

// GetGlobalStats aggregates over every message in the store, minus messages
// belonging to the excluded session ids.
func (s *ChatStore) GetGlobalStats(ctx context.Context, excluded []string) (GlobalStats, error) {
	db, err := s.handle.DB()
	if err != nil {
		return GlobalStats{}, err
	}

	where := ""
	var args []any
	if len(excluded) > 0 {
		where = " WHERE talker NOT IN (" +
			strings.TrimSuffix(strings.Repeat("?,", len(excluded)), ",") + ")"
		for _, id := range excluded {
			args = append(args, id)
		}
	}

	stats := GlobalStats{ByType: make(map[string]int64)}

	var first, last sql.NullInt64
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(create_time), MAX(create_time) FROM all_message"+where,
		args...).Scan(&stats.Total, &first, &last)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("global stats: %w", err)
	}
	if first.Valid {
		stats.First = time.Unix(first.Int64, 0)
	}
	if last.Valid {
		stats.Last = time.Unix(last.Int64, 0)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT type, COUNT(*) FROM all_message"+where+" GROUP BY type", args...)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("type distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var msgType int
		var count int64
		if err := rows.Scan(&msgType, &count); err != nil {
			return GlobalStats{}, err
		}
		stats.ByType[MessageType(msgType).Label()] += count
	}
	if err := rows.Err(); err != nil {
		return GlobalStats{}, err
	}

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT date(create_time, 'unixepoch', 'localtime')) FROM all_message"+where,
		args...).Scan(&stats.ActiveDays)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("active day count: %w", err)
	}

	return stats, nil
}
