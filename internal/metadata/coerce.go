package metadata

import "strings"

// CoerceText bounds s to max characters. Oversize values are truncated with
// the last three characters replaced by "...". Empty values become the
// unknown sentinel.
func CoerceText(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownText
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// CoerceOptional is CoerceText without the sentinel: empty stays empty.
func CoerceOptional(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return CoerceText(s, max)
}

// coerce applies column widths to every text field of a bundle.
func (b *Bundle) coerce() *Bundle {
	b.PodcastName = CoerceText(b.PodcastName, MaxTextField)
	b.EpisodeTitle = CoerceText(b.EpisodeTitle, MaxTextField)
	b.Author = CoerceText(b.Author, MaxTextField)
	b.Category = CoerceText(b.Category, MaxShortField)
	b.Duration = CoerceText(b.Duration, MaxTextField)
	b.PublishedDate = CoerceText(b.PublishedDate, MaxShortField)
	b.Language = CoerceText(b.Language, 16)
	if b.AppleRating < 0 {
		b.AppleRating = 0
	}
	return b
}
