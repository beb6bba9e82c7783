package transcription

import "strings"

// TaggedSegment is a diarized span whose speaker is still the provider's
// anonymous tag ("A", "B", ...).
type TaggedSegment struct {
	Start float64
	End   float64
	Tag   string
	Text  string
}

// Word is a single word with provider timing (seconds) and speaker tag.
type Word struct {
	Text  string
	Start float64
	End   float64
	Tag   string
}

// MergeWords groups consecutive words from the same speaker tag into segments.
// A segment starts at its first word and ends at the last merged word.
func MergeWords(words []Word) []TaggedSegment {
	var out []TaggedSegment
	var b strings.Builder
	for _, w := range words {
		txt := strings.TrimSpace(w.Text)
		if txt == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Tag == w.Tag {
			b.WriteByte(' ')
			b.WriteString(txt)
			out[n-1].End = w.End
			out[n-1].Text = b.String()
			continue
		}
		b.Reset()
		b.WriteString(txt)
		out = append(out, TaggedSegment{Start: w.Start, End: w.End, Tag: w.Tag, Text: txt})
	}
	return out
}

// Tags returns the distinct speaker tags in order of first appearance.
func Tags(segs []TaggedSegment) []string {
	seen := make(map[string]struct{}, 2)
	var tags []string
	for _, s := range segs {
		if _, ok := seen[s.Tag]; ok {
			continue
		}
		seen[s.Tag] = struct{}{}
		tags = append(tags, s.Tag)
	}
	return tags
}

// ApplyRoles converts tagged segments into role-labelled segments. Tags missing
// from roles become SpeakerUnknown.
func ApplyRoles(segs []TaggedSegment, roles map[string]Speaker) []Segment {
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		sp, ok := roles[s.Tag]
		if !ok {
			sp = SpeakerUnknown
		}
		end := s.End
		if end < s.Start {
			end = s.Start
		}
		out = append(out, Segment{Start: s.Start, End: end, Speaker: sp, Text: s.Text})
	}
	return out
}
