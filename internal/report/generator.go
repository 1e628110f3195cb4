// Package report computes the heavy two-party report in a background worker,
// streaming progress events over a single channel and caching the finished
// payload.
package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumarchive/chatscope/internal/logging"
	"github.com/lumarchive/chatscope/internal/store"
)

// ErrCancelled resolves the result future of a torn-down job.
var ErrCancelled = errors.New("report generation cancelled")

// ErrSpawn means the background worker could not be started at all.
var ErrSpawn = errors.New("report worker failed to start")

// State is the job lifecycle.
type State int32

const (
	StateIdle State = iota
	StateSpawning
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

const emojiRankLimit = 10

// Job is one in-flight report generation. Events arrive in emission order on
// a single channel; the percent value never regresses within one job.
type Job struct {
	ID string

	mu           sync.Mutex
	state        State
	events       chan Event
	eventsClosed bool
	lastPct      float64
	result       *DualReport
	err          error

	done     chan struct{}
	cancelFn context.CancelFunc
	finish   sync.Once
}

// Events returns the outbound event channel. It is closed after the terminal
// event.
func (j *Job) Events() <-chan Event { return j.events }

// State reports the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Result blocks until the job reaches a terminal state and returns the full
// payload (with inline assets) or the failure.
func (j *Job) Result() (*DualReport, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Cancel tears the job down: the pending result future is rejected, the event
// channel closed, the worker context cancelled and handles dropped, in that
// order. Calling Cancel on a finished or already-cancelled job is a no-op.
func (j *Job) Cancel() {
	j.terminate(StateCancelled, nil, ErrCancelled,
		Event{Type: EventError, Message: ErrCancelled.Error()})
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// emitProgress forwards a progress event unless its percent regresses behind
// the last one delivered; regressing events are dropped, keeping the consumer
// monotonic even when sub-tasks report out of strict order.
func (j *Job) emitProgress(task, status string, pct float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.eventsClosed || pct < j.lastPct {
		return
	}
	j.lastPct = pct
	select {
	case j.events <- Event{Type: EventProgress, Task: task, Status: status, Progress: pct}:
	default:
		// Slow consumer; progress is advisory, never worth blocking the worker.
	}
}

// terminate delivers the terminal event exactly once and releases everything.
func (j *Job) terminate(state State, result *DualReport, err error, terminal Event) {
	j.finish.Do(func() {
		j.mu.Lock()
		j.state = state
		j.result = result
		j.err = err
		j.mu.Unlock()

		close(j.done) // reject/resolve the pending result future first

		j.mu.Lock()
		if !j.eventsClosed {
			// Progress events are droppable, the terminal event is not. If a
			// slow consumer left the buffer full, evict buffered progress
			// until the terminal event lands.
			for {
				select {
				case j.events <- terminal:
				default:
					select {
					case <-j.events:
					default:
					}
					continue
				}
				break
			}
			j.eventsClosed = true
			close(j.events)
		}
		cancel := j.cancelFn
		j.cancelFn = nil
		j.mu.Unlock()

		if cancel != nil {
			cancel()
		}
	})
}

// Generator runs at most one report job at a time per surface; starting a new
// one first tears down any job still in flight.
type Generator struct {
	store *store.ChatStore
	cache *Cache

	mu      sync.Mutex
	current *Job
}

// NewGenerator builds a generator over an open store and report cache.
func NewGenerator(st *store.ChatStore, cache *Cache) *Generator {
	return &Generator{store: st, cache: cache}
}

// Generate spawns a background worker computing the dual report for one
// counterparty, optionally restricted to a calendar year. The returned job
// streams progress and resolves with the full payload; a stripped copy is
// persisted to the report cache on completion.
func (g *Generator) Generate(ctx context.Context, counterpartyID string, year *int) (*Job, error) {
	if counterpartyID == "" {
		return nil, fmt.Errorf("counterparty id is required")
	}
	// The spawn itself needs a usable handle; a closed store is a spawn
	// failure, not a worker failure.
	if _, err := g.store.Handle().DB(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	g.mu.Lock()
	if g.current != nil {
		g.current.Cancel()
	}
	workerCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:       uuid.New().String(),
		state:    StateSpawning,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		cancelFn: cancel,
	}
	g.current = job
	g.mu.Unlock()

	go g.run(workerCtx, job, counterpartyID, year)
	return job, nil
}

// Cached returns the persisted payload for the slot, if any, without spawning
// a worker.
func (g *Generator) Cached(counterpartyID string, year *int) (*DualReport, bool, error) {
	return g.cache.Load(counterpartyID, year)
}

// CancelCurrent tears down the in-flight job, if any. Idempotent.
func (g *Generator) CancelCurrent() {
	g.mu.Lock()
	job := g.current
	g.mu.Unlock()
	if job != nil {
		job.Cancel()
	}
}

func (g *Generator) run(ctx context.Context, job *Job, counterpartyID string, year *int) {
	job.setState(StateRunning)
	logging.Log.Info("report worker started", "job", job.ID, "counterparty", counterpartyID)

	result, err := g.compute(ctx, job, counterpartyID, year)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			job.Cancel()
			return
		}
		logging.Log.Error("report worker failed", "job", job.ID, "err", err)
		job.terminate(StateFailed, nil, err, Event{Type: EventError, Message: err.Error()})
		return
	}

	// Best-effort repair: a missing top emoji gets one recomputation on this
	// side of the worker boundary. Its failure never fails the report.
	g.repairTopEmoji(ctx, job, result, counterpartyID, year)

	if err := g.cache.Save(counterpartyID, year, result); err != nil {
		logging.Log.Warn("persisting report cache failed", "err", err)
	}

	job.emitProgress("finalize", "done", 100)
	job.terminate(StateCompleted, result, nil, Event{Type: EventDone, Data: result})
	logging.Log.Info("report worker finished", "job", job.ID)
}

func (g *Generator) compute(ctx context.Context, job *Job, counterpartyID string, year *int) (*DualReport, error) {
	result := &DualReport{
		SchemaVersion: SchemaVersion,
		Counterparty:  counterpartyID,
		Year:          year,
		GeneratedAt:   time.Now(),
	}

	job.emitProgress("yearly-stats", "running", 5)
	yearly, err := g.store.GetYearlyMessageStats(ctx, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("yearly stats: %w", err)
	}
	job.emitProgress("yearly-stats", "done", 25)

	breakdown, err := g.store.GetYearlyTypeBreakdown(ctx, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("type breakdown: %w", err)
	}
	job.emitProgress("type-breakdown", "done", 40)

	sections := make(map[int]*YearSection)
	for _, yc := range yearly {
		if year != nil && yc.Year != *year {
			continue
		}
		sections[yc.Year] = &YearSection{
			Year:     yc.Year,
			Total:    yc.Total,
			Sent:     yc.Sent,
			Received: yc.Received,
			ByType:   breakdown[yc.Year],
		}
	}

	// Emoji scan is the expensive part: one streaming pass over the pair's
	// text messages, tallied per year and side.
	selfCounts := make(map[int]map[string]int)
	peerCounts := make(map[int]map[string]int)
	var scanned int64
	err = g.store.StreamTextMessages(ctx, counterpartyID, year, func(m store.Message) error {
		y := m.Time.Year()
		buckets := peerCounts
		if m.IsSender {
			buckets = selfCounts
		}
		if buckets[y] == nil {
			buckets[y] = make(map[string]int)
		}
		countEmoji(m.Content, buckets[y])
		scanned++
		if scanned%5000 == 0 {
			job.emitProgress("emoji-scan", "running", 40+minFloat(float64(scanned)/5000, 40))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("emoji scan: %w", err)
	}
	job.emitProgress("emoji-scan", "done", 82)

	for y, counts := range selfCounts {
		if sections[y] != nil {
			sections[y].EmojiSelf = rankEmoji(counts, emojiRankLimit)
		}
	}
	for y, counts := range peerCounts {
		if sections[y] != nil {
			sections[y].EmojiPeer = rankEmoji(counts, emojiRankLimit)
		}
	}
	for _, yc := range yearly {
		if sec := sections[yc.Year]; sec != nil {
			result.Years = append(result.Years, *sec)
		}
	}

	result.TopEmojiSelf = topEmoji(selfCounts)
	result.TopEmojiPeer = topEmoji(peerCounts)

	tr, err := g.store.GetSessionTimeRange(ctx, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("time range: %w", err)
	}
	result.FirstContact = tr.First
	result.LastContact = tr.Last
	job.emitProgress("streaks", "running", 88)

	dates, err := g.store.GetSessionActiveDates(ctx, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("active dates: %w", err)
	}
	if year != nil {
		dates = filterYear(dates, *year)
	}
	result.ActiveDays = len(dates)
	result.LongestStreak, result.CurrentStreak = streaks(dates)
	job.emitProgress("streaks", "done", 95)

	if names, err := g.store.GetDisplayNames(ctx, []string{counterpartyID}); err == nil {
		result.CounterpartyName = names[counterpartyID]
	}

	return result, nil
}

// repairTopEmoji retries the top-emoji tally once when a side came back
// empty even though the pair exchanged text messages.
func (g *Generator) repairTopEmoji(ctx context.Context, job *Job, result *DualReport, counterpartyID string, year *int) {
	if result.TopEmojiSelf != nil && result.TopEmojiPeer != nil {
		return
	}
	if !hasEmojiSections(result) {
		return // genuinely emoji-free conversation
	}

	selfCounts := make(map[string]int)
	peerCounts := make(map[string]int)
	err := g.store.StreamTextMessages(ctx, counterpartyID, year, func(m store.Message) error {
		if m.IsSender {
			countEmoji(m.Content, selfCounts)
		} else {
			countEmoji(m.Content, peerCounts)
		}
		return nil
	})
	if err != nil {
		logging.Log.Warn("top emoji repair failed", "job", job.ID, "err", err)
		return
	}
	if result.TopEmojiSelf == nil {
		if ranked := rankEmoji(selfCounts, 1); len(ranked) > 0 {
			result.TopEmojiSelf = &ranked[0]
		}
	}
	if result.TopEmojiPeer == nil {
		if ranked := rankEmoji(peerCounts, 1); len(ranked) > 0 {
			result.TopEmojiPeer = &ranked[0]
		}
	}
}

func hasEmojiSections(r *DualReport) bool {
	for _, y := range r.Years {
		if len(y.EmojiSelf) > 0 || len(y.EmojiPeer) > 0 {
			return true
		}
	}
	return false
}

// topEmoji picks the single most used emoji across all years of one side.
func topEmoji(perYear map[int]map[string]int) *EmojiStat {
	merged := make(map[string]int)
	for _, counts := range perYear {
		for emoji, count := range counts {
			merged[emoji] += count
		}
	}
	ranked := rankEmoji(merged, 1)
	if len(ranked) == 0 {
		return nil
	}
	return &ranked[0]
}

// streaks computes the longest run of consecutive active days and the run
// ending at the most recent active day. dates must be ascending.
func streaks(dates []time.Time) (longest, current int) {
	if len(dates) == 0 {
		return 0, 0
	}
	longest, current = 1, 1
	run := 1
	for i := 1; i < len(dates); i++ {
		if dates[i-1].AddDate(0, 0, 1).Equal(dates[i]) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	current = run
	return longest, current
}

func filterYear(dates []time.Time, year int) []time.Time {
	var out []time.Time
	for _, d := range dates {
		if d.Year() == year {
			out = append(out, d)
		}
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
