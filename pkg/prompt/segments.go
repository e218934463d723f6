package prompt

import (
	"sort"
	"strings"
)

type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentMention
	SegmentLineBreak
)

type Segment struct {
	Kind    SegmentKind
	Text    string
	Mention *Mention
}

// RenderSegments splits prompt content into display pieces: plain text runs,
// @mentions that match a known label, and line breaks.
func RenderSegments(data Data) []Segment {
	labels := make([]Mention, 0, len(data.Mentions))
	for _, m := range data.Mentions {
		if m.Label != "" {
			labels = append(labels, m)
		}
	}
	sort.SliceStable(labels, func(i, j int) bool { return len(labels[i].Label) > len(labels[j].Label) })

	var (
		segments []Segment
		text     strings.Builder
	)
	flush := func() {
		if text.Len() == 0 {
			return
		}
		segments = append(segments, Segment{Kind: SegmentText, Text: text.String()})
		text.Reset()
	}

	content := data.Content
	for i := 0; i < len(content); {
		switch content[i] {
		case '\n':
			flush()
			segments = append(segments, Segment{Kind: SegmentLineBreak})
			i++
			continue
		case '@':
			if m, ok := labelAt(content[i+1:], labels); ok {
				flush()
				mention := m
				segments = append(segments, Segment{Kind: SegmentMention, Text: "@" + m.Label, Mention: &mention})
				i += 1 + len(m.Label)
				continue
			}
		}
		text.WriteByte(content[i])
		i++
	}
	flush()

	return segments
}

func labelAt(rest string, byLength []Mention) (Mention, bool) {
	for _, m := range byLength {
		if strings.HasPrefix(rest, m.Label) {
			return m, true
		}
	}
	return Mention{}, false
}
