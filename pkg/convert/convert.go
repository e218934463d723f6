package convert

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"themeforge/pkg/prompt"
)

const (
	PartText  = "text"
	PartImage = "image"

	svgDataURLPrefix = "data:image/svg+xml"
)

// Part is one piece of user content.
type Part struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// APIMessage is a role/content message for the generation endpoint. User
// content travels as Parts, assistant content as plain Text.
type APIMessage struct {
	Role  prompt.Role
	Text  string
	Parts []Part
}

type wireMessage struct {
	Role    prompt.Role     `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m APIMessage) MarshalJSON() ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if m.Role == prompt.RoleUser {
		parts := m.Parts
		if parts == nil {
			parts = []Part{}
		}
		content, err = json.Marshal(parts)
	} else {
		content, err = json.Marshal(m.Text)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content})
}

func (m *APIMessage) UnmarshalJSON(raw []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	m.Role = wire.Role
	m.Text = ""
	m.Parts = nil

	content := strings.TrimSpace(string(wire.Content))
	switch {
	case content == "" || content == "null":
		return nil
	case strings.HasPrefix(content, "["):
		return json.Unmarshal(wire.Content, &m.Parts)
	default:
		return json.Unmarshal(wire.Content, &m.Text)
	}
}

// ToAPIMessages maps the chat log to API messages, keeping order. User
// messages without prompt data and assistant messages without content are
// dropped.
func ToAPIMessages(messages []prompt.ChatMessage) []APIMessage {
	out := make([]APIMessage, 0, len(messages))

	for _, msg := range messages {
		switch {
		case msg.Role == prompt.RoleUser && msg.PromptData != nil:
			out = append(out, APIMessage{Role: prompt.RoleUser, Parts: userParts(*msg.PromptData)})
		case msg.Role == prompt.RoleAssistant && msg.Content != "":
			text := msg.Content
			if msg.ThemeStyles != nil {
				if raw, err := json.Marshal(msg.ThemeStyles); err == nil {
					text += "\n\n" + string(raw)
				}
			}
			out = append(out, APIMessage{Role: prompt.RoleAssistant, Text: text})
		}
	}

	return out
}

func userParts(data prompt.Data) []Part {
	parts := make([]Part, 0, len(data.Images)+1)

	for _, image := range data.Images {
		if markup, ok, err := DecodeSVGDataURL(image.URL); ok && err == nil {
			parts = append(parts, Part{Type: PartText, Text: "```svg\n" + markup + "\n```"})
			continue
		}
		parts = append(parts, Part{Type: PartImage, Image: image.URL})
	}

	if text := prompt.BuildForAPI(data); strings.TrimSpace(text) != "" {
		parts = append(parts, Part{Type: PartText, Text: text})
	}

	return parts
}

// DecodeSVGDataURL returns the markup of an inline SVG data URL. ok is false
// for anything that is not an SVG data URL; err is set when it is one but the
// payload cannot be decoded.
func DecodeSVGDataURL(raw string) (string, bool, error) {
	if !strings.HasPrefix(raw, svgDataURLPrefix) {
		return "", false, nil
	}
	_, data, err := ParseDataURL(raw)
	if err != nil {
		return "", true, fmt.Errorf("decode svg: %w", err)
	}
	return string(data), true, nil
}

// ParseDataURL splits a data: URL into its media type and decoded payload.
// Base64 and percent-encoded payloads are both accepted; a missing media type
// reads as text/plain.
func ParseDataURL(raw string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return "", nil, errors.New("not a data url")
	}
	header, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", nil, errors.New("data url has no payload")
	}

	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return mediaType, decoded, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode percent-encoded payload: %w", err)
	}
	return mediaType, []byte(decoded), nil
}
