// Package store is the read-only query façade over a decrypted chat store.
// All queries go through the handle opened by wxcrypt; nothing here ever
// writes to the store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lumarchive/chatscope/internal/wxcrypt"
)

// The suffix the messaging client uses for group conversation identifiers.
const groupSuffix = "@chatroom"

// ChatStore runs queries against an open store handle.
type ChatStore struct {
	handle *wxcrypt.StoreHandle
}

// New wraps an open handle. The handle stays owned by the caller.
func New(handle *wxcrypt.StoreHandle) *ChatStore {
	return &ChatStore{handle: handle}
}

// Handle exposes the underlying store handle.
func (s *ChatStore) Handle() *wxcrypt.StoreHandle { return s.handle }

// ListSessions returns every conversation in the store, most recent first.
// Display names come from the contact database, remark preferred.
func (s *ChatStore) ListSessions(ctx context.Context) ([]Session, error) {
	db, err := s.handle.DB()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT s.username,
		       COALESCE(NULLIF(c.remark, ''), NULLIF(c.nick_name, ''), '') AS display_name,
		       COALESCE(s.summary, ''),
		       COALESCE(s.last_timestamp, 0)
		FROM sessiondb.SessionTable s
		LEFT JOIN contactdb.contact c ON c.username = s.username
		ORDER BY s.last_timestamp DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var lastTS int64
		if err := rows.Scan(&sess.ID, &sess.DisplayName, &sess.Summary, &lastTS); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.IsGroup = strings.HasSuffix(sess.ID, groupSuffix)
		if lastTS > 0 {
			sess.LastTime = time.Unix(lastTS, 0)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetMessages returns one page of a session's messages, newest first. The
// rows are fetched in storage (chronological) order and reversed, so a caller
// that needs chronological order reverses again. An unknown session yields an
// empty batch.
func (s *ChatStore) GetMessages(ctx context.Context, sessionID string, limit, offset int) (*MessageBatch, error) {
	db, err := s.handle.DB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var total int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM all_message WHERE talker = ?", sessionID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	// Translate the newest-first window into a chronological one.
	chronOffset := total - offset - limit
	chronLimit := limit
	if chronOffset < 0 {
		chronLimit += chronOffset
		chronOffset = 0
	}

	batch := &MessageBatch{TotalCount: total}
	if chronLimit <= 0 {
		return batch, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT sender, is_sender, type, create_time, content
		FROM all_message WHERE talker = ?
		ORDER BY create_time ASC
		LIMIT ? OFFSET ?`, sessionID, chronLimit, chronOffset)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var isSender int
		var ts int64
		var msgType int
		if err := rows.Scan(&msg.Sender, &isSender, &msgType, &ts, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.IsSender = isSender != 0
		msg.Type = MessageType(msgType)
		msg.Time = time.Unix(ts, 0)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to newest-first for the API boundary.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	batch.Messages = messages
	// A full page means more may exist; a short page means exhausted.
	batch.HasMore = len(messages) == limit
	if batch.HasMore {
		batch.NextOffset = offset + len(messages)
	}
	return batch, nil
}

// GetSessionMessageStats computes total/sent/received for a session with a
// single aggregate query. year, when non-nil, restricts the window to that
// calendar year (local time). Never materializes message rows.
func (s *ChatStore) GetSessionMessageStats(ctx context.Context, sessionID string, year *int) (SessionStats, error) {
	db, err := s.handle.DB()
	if err != nil {
		return SessionStats{}, err
	}

	query := "SELECT COUNT(*), COALESCE(SUM(is_sender), 0) FROM all_message WHERE talker = ?"
	args := []any{sessionID}
	if year != nil {
		start, end := yearBounds(*year)
		query += " AND create_time >= ? AND create_time < ?"
		args = append(args, start, end)
	}

	var stats SessionStats
	if err := db.QueryRowContext(ctx, query, args...).Scan(&stats.Total, &stats.Sent); err != nil {
		return SessionStats{}, fmt.Errorf("session stats: %w", err)
	}
	stats.Received = stats.Total - stats.Sent
	return stats, nil
}

// GetSessionTimeRange returns the first and last message time of a session.
func (s *ChatStore) GetSessionTimeRange(ctx context.Context, sessionID string) (TimeRange, error) {
	db, err := s.handle.DB()
	if err != nil {
		return TimeRange{}, err
	}

	var first, last sql.NullInt64
	err = db.QueryRowContext(ctx,
		"SELECT MIN(create_time), MAX(create_time) FROM all_message WHERE talker = ?",
		sessionID).Scan(&first, &last)
	if err != nil {
		return TimeRange{}, fmt.Errorf("session time range: %w", err)
	}

	var tr TimeRange
	if first.Valid {
		tr.First = time.Unix(first.Int64, 0)
	}
	if last.Valid {
		tr.Last = time.Unix(last.Int64, 0)
	}
	return tr, nil
}

// GetSessionActiveDates returns the distinct calendar dates (local time) on
// which the session has at least one message, ascending.
func (s *ChatStore) GetSessionActiveDates(ctx context.Context, sessionID string) ([]time.Time, error) {
	db, err := s.handle.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT date(create_time, 'unixepoch', 'localtime') AS day
		FROM all_message WHERE talker = ?
		ORDER BY day ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("active dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		t, err := time.ParseInLocation("2006-01-02", day, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parse active date %q: %w", day, err)
		}
		dates = append(dates, t)
	}
	return dates, rows.Err()
}

// GetDisplayNames resolves display names for a batch of ids with one query.
// Ids without a contact row are absent from the result.
func (s *ChatStore) GetDisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	db, err := s.handle.DB()
	if err != nil {
		return nil, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT username, COALESCE(NULLIF(remark, ''), NULLIF(nick_name, ''), '')
		FROM contactdb.contact WHERE username IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("display names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		if name != "" {
			names[id] = name
		}
	}
	return names, rows.Err()
}

// yearBounds returns the [start, end) unix seconds of a calendar year in
// local time.
func yearBounds(year int) (int64, int64) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.Local)
	return start.Unix(), start.AddDate(1, 0, 0).Unix()
}
