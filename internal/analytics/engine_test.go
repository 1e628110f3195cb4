package analytics_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumarchive/chatscope/internal/analytics"
	kvcache "github.com/lumarchive/chatscope/internal/cache"
	"github.com/lumarchive/chatscope/internal/store"
	"github.com/lumarchive/chatscope/internal/store/storetest"
	"github.com/lumarchive/chatscope/internal/wxcrypt"
)

const (
	friendID = "wxid_friend"
	buddyID  = "wxid_buddy"
	helperID = "filehelper"
	groupID  = "30001@chatroom"
	quietID  = "wxid_quiet"
)

func at(day, hour int) time.Time {
	return time.Date(2024, time.July, day, hour, 0, 0, 0, time.Local)
}

func seed() storetest.Seed {
	s := storetest.Seed{
		Sessions: []storetest.Session{
			{ID: friendID, LastTime: at(4, 10)},
			{ID: buddyID, LastTime: at(3, 10)},
			{ID: helperID, LastTime: at(2, 10)},
			{ID: groupID, LastTime: at(5, 10)},
			{ID: quietID, LastTime: at(1, 10)},
		},
		Contacts: []storetest.Contact{
			{ID: friendID, Nickname: "Friend"},
			{ID: buddyID, Remark: "Buddy"},
		},
	}
	add := func(talker string, n int) {
		for i := 0; i < n; i++ {
			s.Messages = append(s.Messages, storetest.Message{
				Talker: talker, Sender: talker, Type: 1,
				Time: at(1+i, 12), Content: "m",
			})
		}
	}
	add(friendID, 4)
	add(buddyID, 2)
	add(helperID, 1)
	add(groupID, 3)
	return s
}

func newEngine(t *testing.T) (*analytics.Engine, *wxcrypt.StoreHandle) {
	t.Helper()
	handle := storetest.Open(t, seed())
	cache, err := analytics.NewCache(t.TempDir())
	require.NoError(t, err)
	return analytics.NewEngine(store.New(handle), cache), handle
}

// Sessions seeded: four private contacts (one without messages), one group.
// A full scan issues one stats query per private session.
const scansPerCompute = 4

func TestComputeRankings(t *testing.T) {
	engine, _ := newEngine(t)
	result, err := engine.LoadOrCompute(context.Background(), analytics.Options{})
	require.NoError(t, err)

	assert.False(t, result.FromCache)
	require.Len(t, result.Rankings, 3, "groups and empty sessions never rank")
	assert.Equal(t, friendID, result.Rankings[0].ID)
	assert.Equal(t, "Friend", result.Rankings[0].DisplayName)
	assert.Equal(t, int64(4), result.Rankings[0].MessageCount)
	assert.Equal(t, buddyID, result.Rankings[1].ID)
	assert.Equal(t, helperID, result.Rankings[2].ID)

	assert.Equal(t, 3, result.Diagnostics.Scanned)
	assert.Equal(t, 1, result.Diagnostics.Skipped)
	assert.Equal(t, 0, result.Diagnostics.Failed)

	assert.Equal(t, int64(10), result.Stats.TotalMessages, "group traffic counts in the global aggregate")
	assert.Equal(t, int64(scansPerCompute), engine.ScanCount())
}

func TestCacheFastPath(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	_, err := engine.LoadOrCompute(ctx, analytics.Options{})
	require.NoError(t, err)
	require.Equal(t, int64(scansPerCompute), engine.ScanCount())

	result, err := engine.LoadOrCompute(ctx, analytics.Options{})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, int64(scansPerCompute), engine.ScanCount(), "cache hit issues no scans")
	require.Len(t, result.Rankings, 3)
	assert.Equal(t, friendID, result.Rankings[0].ID)
}

func TestCacheHitIgnoresExclusionOrder(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	_, err := engine.LoadOrCompute(ctx, analytics.Options{Excluded: []string{helperID, quietID}})
	require.NoError(t, err)
	before := engine.ScanCount()

	result, err := engine.LoadOrCompute(ctx, analytics.Options{Excluded: []string{quietID, helperID}})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, before, engine.ScanCount())
}

func TestForceRefresh(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	_, err := engine.LoadOrCompute(ctx, analytics.Options{})
	require.NoError(t, err)

	result, err := engine.LoadOrCompute(ctx, analytics.Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, int64(2*scansPerCompute), engine.ScanCount())
}

func TestExclusionChangeInvalidates(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	_, err := engine.LoadOrCompute(ctx, analytics.Options{})
	require.NoError(t, err)

	result, err := engine.LoadOrCompute(ctx, analytics.Options{Excluded: []string{helperID}})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	require.Len(t, result.Rankings, 2)
	for _, r := range result.Rankings {
		assert.NotEqual(t, helperID, r.ID)
	}
	assert.Equal(t, int64(9), result.Stats.TotalMessages, "exclusions flow into the aggregate")
}

func TestStaleEntryReusedOnRequest(t *testing.T) {
	engine, handle := newEngine(t)
	ctx := context.Background()

	_, err := engine.LoadOrCompute(ctx, analytics.Options{})
	require.NoError(t, err)
	before := engine.ScanCount()

	// The live store moves on after the aggregate was computed.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(handle.SourcePath(), later, later))

	var sawComputedAt time.Time
	result, err := engine.LoadOrCompute(ctx, analytics.Options{
		OnStale: func(computedAt time.Time) analytics.StaleDecision {
			sawComputedAt = computedAt
			return analytics.DecideReuse
		},
	})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, before, engine.ScanCount())
	assert.WithinDuration(t, time.Now(), sawComputedAt, time.Minute)
}

func TestStaleEntryRecomputedByDefault(t *testing.T) {
	engine, handle := newEngine(t)
	ctx := context.Background()

	_, err := engine.LoadOrCompute(ctx, analytics.Options{})
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(handle.SourcePath(), later, later))

	result, err := engine.LoadOrCompute(ctx, analytics.Options{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, int64(2*scansPerCompute), engine.ScanCount())
}

func TestRealtimeHandleRefused(t *testing.T) {
	handle := storetest.OpenMode(t, seed(), wxcrypt.ModeRealtime)
	cache, err := analytics.NewCache(t.TempDir())
	require.NoError(t, err)
	engine := analytics.NewEngine(store.New(handle), cache)

	_, err = engine.LoadOrCompute(context.Background(), analytics.Options{})
	require.ErrorIs(t, err, analytics.ErrRealtimeAnalysis)
	assert.Zero(t, engine.ScanCount(), "refusal happens before any store query")
}

func TestCacheReadFailureFallsBackToCompute(t *testing.T) {
	handle := storetest.Open(t, seed())
	dataDir := t.TempDir()
	cache, err := analytics.NewCache(dataDir)
	require.NoError(t, err)
	engine := analytics.NewEngine(store.New(handle), cache)

	// A directory squatting on the entry path makes the read fail with
	// something other than a missing file. Still just a miss.
	entry := filepath.Join(dataDir, "cache", "analytics", handle.AccountID()+".json")
	require.NoError(t, os.MkdirAll(entry, 0o755))

	result, err := engine.LoadOrCompute(context.Background(), analytics.Options{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	require.Len(t, result.Rankings, 3)
	assert.Equal(t, int64(scansPerCompute), engine.ScanCount())
}

func TestCacheSchemaMismatchIsMiss(t *testing.T) {
	dir := t.TempDir()

	// An entry written by a different schema version reads as a miss.
	kv, err := kvcache.New(dir, "analytics")
	require.NoError(t, err)
	require.NoError(t, kv.Save("wxid_x", map[string]any{"schemaVersion": 99}))

	cache, err := analytics.NewCache(dir)
	require.NoError(t, err)
	_, ok, err := cache.Load("wxid_x")
	require.NoError(t, err)
	assert.False(t, ok)
}
