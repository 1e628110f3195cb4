package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() *DualReport {
	return &DualReport{
		SchemaVersion: SchemaVersion,
		Counterparty:  "wxid_pal",
		Years: []YearSection{{
			Year:      2024,
			Total:     10,
			EmojiSelf: []EmojiStat{{Emoji: "\U0001F600", Count: 4, Image: []byte{0x89, 0x50}}},
		}},
		TopEmojiSelf: &EmojiStat{Emoji: "\U0001F600", Count: 4, Image: []byte{0x89, 0x50}},
		ActiveDays:   3,
		GeneratedAt:  time.Now(),
	}
}

func TestStripAssets(t *testing.T) {
	payload := samplePayload()
	stripped := payload.StripAssets()

	assert.Nil(t, stripped.TopEmojiSelf.Image)
	assert.Nil(t, stripped.Years[0].EmojiSelf[0].Image)
	assert.Equal(t, payload.TopEmojiSelf.Count, stripped.TopEmojiSelf.Count)

	// The original keeps its inline assets for display.
	assert.NotNil(t, payload.TopEmojiSelf.Image)
	assert.NotNil(t, payload.Years[0].EmojiSelf[0].Image)
}

func TestCacheStripsOnSave(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	payload := samplePayload()
	require.NoError(t, cache.Save("wxid_pal", nil, payload))
	assert.NotNil(t, payload.TopEmojiSelf.Image, "saving never mutates the caller's payload")

	loaded, ok, err := cache.Load("wxid_pal", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, loaded.TopEmojiSelf.Image)
	assert.Equal(t, 4, loaded.TopEmojiSelf.Count)
}

func TestCacheYearSlots(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	all := samplePayload()
	year := 2024
	scoped := samplePayload()
	scoped.Year = &year
	scoped.ActiveDays = 1

	require.NoError(t, cache.Save("wxid_pal", nil, all))
	require.NoError(t, cache.Save("wxid_pal", &year, scoped))

	gotAll, ok, err := cache.Load("wxid_pal", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, gotAll.ActiveDays)

	gotYear, ok, err := cache.Load("wxid_pal", &year)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, gotYear.ActiveDays)

	keys, err := cache.ListKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"wxid_pal-2024", "wxid_pal-all"}, keys)
}

func TestCacheSchemaMismatchIsMiss(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	stale := samplePayload()
	stale.SchemaVersion = SchemaVersion + 1
	require.NoError(t, cache.kv.Save(cacheKey("wxid_pal", nil), stale))

	_, ok, err := cache.Load("wxid_pal", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
