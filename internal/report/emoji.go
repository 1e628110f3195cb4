package report

import "sort"

// emojiRange covers the Unicode blocks the client's text messages carry
// emoji in. Skin-tone modifiers and joiners are not counted on their own.
type emojiRange struct{ lo, hi rune }

var emojiRanges = []emojiRange{
	{0x1F300, 0x1F5FF}, // symbols and pictographs
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F680, 0x1F6FF}, // transport
	{0x1F900, 0x1F9FF}, // supplemental symbols
	{0x1FA70, 0x1FAFF}, // extended-A
	{0x2600, 0x26FF},   // miscellaneous symbols
	{0x2700, 0x27BF},   // dingbats
}

func isEmoji(r rune) bool {
	for _, er := range emojiRanges {
		if r >= er.lo && r <= er.hi {
			return true
		}
	}
	return false
}

// countEmoji tallies every emoji rune in s into counts.
func countEmoji(s string, counts map[string]int) {
	for _, r := range s {
		if isEmoji(r) {
			counts[string(r)]++
		}
	}
}

// rankEmoji converts a tally into a ranking, count descending, ties broken
// by codepoint for determinism, truncated to limit.
func rankEmoji(counts map[string]int, limit int) []EmojiStat {
	if len(counts) == 0 {
		return nil
	}
	stats := make([]EmojiStat, 0, len(counts))
	for emoji, count := range counts {
		stats = append(stats, EmojiStat{Emoji: emoji, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Emoji < stats[j].Emoji
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}
