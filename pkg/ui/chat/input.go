package chat

import (
	"strconv"
	"strings"

	"themeforge/pkg/prompt"
)

// currentThemeAlias lets users type @current instead of the full mention id.
const currentThemeAlias = "current"

// ParseInput turns a typed line into a prompt document. Words of the form
// @id become mention nodes when id names the current theme or a known preset;
// anything else stays plain text.
func ParseInput(text string, resolver prompt.Resolver) prompt.Node {
	lines := strings.Split(text, "\n")
	paragraph := prompt.Node{Type: prompt.NodeParagraph}

	for li, line := range lines {
		if li > 0 {
			paragraph.Content = append(paragraph.Content, prompt.Node{Type: prompt.NodeHardBreak})
		}

		var plain strings.Builder
		flush := func() {
			if plain.Len() > 0 {
				paragraph.Content = append(paragraph.Content, prompt.Node{Type: prompt.NodeText, Text: plain.String()})
				plain.Reset()
			}
		}

		for i := 0; i < len(line); {
			if line[i] == '@' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t') {
				end := i + 1
				for end < len(line) && line[end] != ' ' && line[end] != '\t' {
					end++
				}
				if node, n, ok := mentionNode(line[i+1:end], resolver); ok {
					flush()
					paragraph.Content = append(paragraph.Content, node)
					i += 1 + n
					continue
				}
			}
			plain.WriteByte(line[i])
			i++
		}
		flush()
	}

	return prompt.Node{Type: prompt.NodeDoc, Content: []prompt.Node{paragraph}}
}

// mentionNode resolves the word after '@'. Trailing punctuation is not part
// of the id; n is how many bytes of token the mention consumed.
func mentionNode(token string, resolver prompt.Resolver) (node prompt.Node, n int, ok bool) {
	id := strings.TrimRight(token, ".,;:!?")
	if id == "" {
		return prompt.Node{}, 0, false
	}
	n = len(id)
	if strings.EqualFold(id, currentThemeAlias) {
		id = prompt.CurrentThemeMentionID
	}

	mention, found := resolver.Resolve(id)
	if !found {
		return prompt.Node{}, 0, false
	}
	return prompt.Node{Type: prompt.NodeMention, Attrs: &prompt.Attrs{ID: id, Label: mention.Label}}, n, true
}

// DocumentText is the inverse of ParseInput: mentions are written back as
// @id so the line can be edited and parsed again.
func DocumentText(doc prompt.Node) string {
	var b strings.Builder

	var walk func(n prompt.Node)
	walk = func(n prompt.Node) {
		switch n.Type {
		case prompt.NodeText:
			b.WriteString(n.Text)
		case prompt.NodeHardBreak:
			b.WriteString("\n")
		case prompt.NodeMention:
			if n.Attrs == nil {
				return
			}
			id := n.Attrs.ID
			if id == prompt.CurrentThemeMentionID {
				id = currentThemeAlias
			}
			b.WriteString("@" + id)
		}
		for _, child := range n.Content {
			walk(child)
		}
	}

	for i, block := range doc.Content {
		if i > 0 {
			b.WriteString("\n")
		}
		walk(block)
	}
	return b.String()
}

const commandHelp = "/retry N · /restore N · /clear · /image FILE... · /unattach · /cancel"

type command struct {
	name string
	args []string
}

// parseCommand recognises slash commands such as "/retry 2".
func parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// messageNumber parses a 1-based message number into a log index.
func messageNumber(args []string) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}
