package prompt

import (
	"regexp"
	"strings"
)

const (
	NodeDoc       = "doc"
	NodeParagraph = "paragraph"
	NodeText      = "text"
	NodeMention   = "mention"
	NodeHardBreak = "hardBreak"
)

// Node is the rich-text document the prompt editor produces. Block nodes hold
// children in Content; mention nodes carry their id and label in Attrs.
type Node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Attrs   *Attrs `json:"attrs,omitempty"`
	Content []Node `json:"content,omitempty"`
}

type Attrs struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var mentionPattern = regexp.MustCompile(`@([\w\s\-:]+)`)

// Extract flattens doc into prompt text and the mentions it references, in
// document order. Top-level blocks are separated by newlines. Mentions whose
// preset cannot be found still appear, with empty theme data.
func Extract(doc Node, resolver Resolver) Data {
	var (
		text     strings.Builder
		mentions []Mention
	)

	var walk func(n Node)
	walk = func(n Node) {
		switch n.Type {
		case NodeText:
			text.WriteString(n.Text)
		case NodeMention:
			var id, label string
			if n.Attrs != nil {
				id, label = n.Attrs.ID, n.Attrs.Label
			}
			text.WriteString("@" + label)

			mention, _ := resolver.Resolve(id)
			mention.ID = id
			mention.Label = label
			mentions = append(mentions, mention)
		case NodeHardBreak:
			text.WriteString("\n")
		}
		for _, child := range n.Content {
			walk(child)
		}
	}

	if len(doc.Content) > 0 {
		for i, block := range doc.Content {
			walk(block)
			if i < len(doc.Content)-1 {
				text.WriteString("\n")
			}
		}
	} else {
		walk(doc)
	}

	return Data{
		Content:  strings.ReplaceAll(text.String(), `\n`, "\n"),
		Mentions: mentions,
	}
}

// ToDoc rebuilds an editor document from prompt data. Each @token is matched
// against the mention labels; the longest label that prefixes the token wins,
// and among equal labels the first mention wins. Unmatched tokens stay text.
func ToDoc(data Data) Node {
	lines := strings.Split(data.Content, "\n")
	nodes := make([]Node, 0, len(lines))

	var pending strings.Builder
	flush := func() {
		if pending.Len() == 0 {
			return
		}
		nodes = append(nodes, Node{Type: NodeText, Text: pending.String()})
		pending.Reset()
	}

	for lineIdx, line := range lines {
		last := 0
		for _, loc := range mentionPattern.FindAllStringSubmatchIndex(line, -1) {
			candidate := line[loc[2]:loc[3]]
			mention, ok := matchLabel(candidate, data.Mentions)
			if !ok {
				continue
			}

			pending.WriteString(line[last:loc[0]])
			flush()
			nodes = append(nodes, Node{
				Type:  NodeMention,
				Attrs: &Attrs{ID: mention.ID, Label: mention.Label},
			})
			last = loc[2] + len(mention.Label)
		}
		pending.WriteString(line[last:])

		if lineIdx < len(lines)-1 {
			flush()
			nodes = append(nodes, Node{Type: NodeHardBreak})
		}
	}
	flush()

	if len(nodes) == 0 {
		nodes = append(nodes, Node{Type: NodeText, Text: ""})
	}

	return Node{
		Type:    NodeDoc,
		Content: []Node{{Type: NodeParagraph, Content: nodes}},
	}
}

func matchLabel(candidate string, mentions []Mention) (Mention, bool) {
	var (
		best  Mention
		found bool
	)
	for _, m := range mentions {
		if m.Label == "" || !strings.HasPrefix(candidate, m.Label) {
			continue
		}
		if len(candidate) > len(m.Label) && isWordByte(candidate[len(m.Label)]) {
			continue
		}
		if !found || len(m.Label) > len(best.Label) {
			best = m
			found = true
		}
	}
	return best, found
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
