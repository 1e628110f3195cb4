// Package analytics computes ranked, windowed aggregates over a decrypted
// chat store, with persistent caching keyed by the store's modification time
// and the active exclusion set.
package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lumarchive/chatscope/internal/logging"
	"github.com/lumarchive/chatscope/internal/store"
	"github.com/lumarchive/chatscope/internal/wxcrypt"
)

// ErrRealtimeAnalysis gates analytics away from realtime handles: a full
// scan against the live encrypted file is both slow and racy. Callers should
// offer the user a switch to backup mode, not just print the error.
var ErrRealtimeAnalysis = errors.New("analytics requires a decrypted backup copy; reopen the store in backup mode")

// StaleDecision is the caller's answer when cached data exists but the store
// changed since it was computed.
type StaleDecision int

const (
	// DecideRecompute discards the stale entry and rescans the store.
	DecideRecompute StaleDecision = iota
	// DecideReuse returns the stale entry as-is.
	DecideReuse
)

// StaleFunc is consulted when a cache entry's store fingerprint no longer
// matches the live file. Recomputation is a full-store scan, so this is a
// user-facing decision, not an automatic policy.
type StaleFunc func(computedAt time.Time) StaleDecision

// Options configures one LoadOrCompute call.
type Options struct {
	Excluded     []string
	ForceRefresh bool
	// OnStale decides what to do with a stale cache entry. Nil means
	// recompute. A configurable auto policy (e.g. accept entries younger
	// than N days) would slot in here.
	OnStale StaleFunc
}

// Engine streams store queries into aggregates.
type Engine struct {
	store *store.ChatStore
	cache *Cache

	scanCount atomic.Int64
}

// NewEngine builds an engine over an open store and an analytics cache.
func NewEngine(st *store.ChatStore, cache *Cache) *Engine {
	return &Engine{store: st, cache: cache}
}

// ScanCount reports how many per-session scan queries the engine has issued
// over its lifetime. Cache hits do not move it.
func (e *Engine) ScanCount() int64 { return e.scanCount.Load() }

// LoadOrCompute returns the aggregate for the current store state, serving
// from cache when the store and exclusion set are unchanged.
func (e *Engine) LoadOrCompute(ctx context.Context, opts Options) (*Result, error) {
	if e.store.Handle().Mode() == wxcrypt.ModeRealtime {
		return nil, ErrRealtimeAnalysis
	}

	liveFP, err := e.store.Handle().Fingerprint()
	if err != nil {
		return nil, err
	}
	exclFP := exclusionFingerprint(opts.Excluded)
	account := e.store.Handle().AccountID()

	entry, ok, err := e.cache.Load(account)
	if err != nil {
		// An unreadable cache costs a recompute, never the operation.
		logging.Log.Warn("analytics cache unreadable, recomputing", "err", err)
		ok = false
	}
	if ok && entry.ExclusionFingerprint == exclFP && !opts.ForceRefresh {
		if entry.StoreFingerprint == liveFP {
			return resultFromEntry(entry), nil
		}
		// Store changed since the entry was built. Let the caller choose:
		// reuse immediately or pay for a rescan.
		if opts.OnStale != nil && opts.OnStale(entry.ComputedAt) == DecideReuse {
			logging.Log.Info("reusing stale analytics", "computedAt", entry.ComputedAt)
			return resultFromEntry(entry), nil
		}
	}

	result, err := e.compute(ctx, opts.Excluded)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Save(account, &Entry{
		Stats:                result.Stats,
		Rankings:             result.Rankings,
		Diagnostics:          result.Diagnostics,
		StoreFingerprint:     liveFP,
		ExclusionFingerprint: exclFP,
		ComputedAt:           time.Now(),
	}); err != nil {
		// A write failure costs a future recompute, nothing more.
		logging.Log.Warn("persisting analytics cache failed", "err", err)
	}
	return result, nil
}

// compute runs the full-store scan: one stats query and one time-range query
// per private session, never raw messages.
func (e *Engine) compute(ctx context.Context, excluded []string) (*Result, error) {
	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}

	result := &Result{}
	processed := 0
	for _, sess := range sessions {
		if sess.IsGroup || skip[sess.ID] {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		processed++
		if processed%100 == 0 {
			logging.Log.Debug("scanning contacts", "processed", processed)
			runtime.Gosched()
		}

		e.scanCount.Add(1)
		stats, err := e.store.GetSessionMessageStats(ctx, sess.ID, nil)
		if err != nil {
			result.Diagnostics.Failed++
			logging.Log.Warn("contact scan failed, skipping", "contact", sess.ID, "err", err)
			continue
		}
		if stats.Total == 0 {
			result.Diagnostics.Skipped++
			continue
		}
		tr, err := e.store.GetSessionTimeRange(ctx, sess.ID)
		if err != nil {
			result.Diagnostics.Failed++
			logging.Log.Warn("contact scan failed, skipping", "contact", sess.ID, "err", err)
			continue
		}

		result.Diagnostics.Scanned++
		result.Rankings = append(result.Rankings, ContactRanking{
			ID:           sess.ID,
			DisplayName:  sess.DisplayName,
			MessageCount: stats.Total,
			Sent:         stats.Sent,
			Received:     stats.Received,
			LastMessage:  tr.Last,
		})
	}

	sort.SliceStable(result.Rankings, func(i, j int) bool {
		return result.Rankings[i].MessageCount > result.Rankings[j].MessageCount
	})

	global, err := e.store.GetGlobalStats(ctx, excluded)
	if err != nil {
		return nil, err
	}
	result.Stats = statisticsFromGlobal(global)
	return result, nil
}

func statisticsFromGlobal(g store.GlobalStats) ChatStatistics {
	stats := ChatStatistics{
		TotalMessages: g.Total,
		ActiveDays:    g.ActiveDays,
		ByType:        g.ByType,
		FirstMessage:  g.First,
		LastMessage:   g.Last,
	}
	if g.ActiveDays > 0 {
		stats.AveragePerDay = float64(g.Total) / float64(g.ActiveDays)
	}
	if !g.First.IsZero() && !g.Last.IsZero() {
		stats.SpanDays = int(g.Last.Sub(g.First).Hours()/24) + 1
	}
	return stats
}

func resultFromEntry(entry *Entry) *Result {
	return &Result{
		Stats:       entry.Stats,
		Rankings:    entry.Rankings,
		Diagnostics: entry.Diagnostics,
		FromCache:   true,
	}
}

// exclusionFingerprint hashes the sorted exclusion set so a changed set
// invalidates the cache implicitly. Exclusions are never post-filtered over
// cached rankings; they always flow into the aggregate itself.
func exclusionFingerprint(excluded []string) string {
	ids := append([]string(nil), excluded...)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\x00")))
	return hex.EncodeToString(sum[:])
}
